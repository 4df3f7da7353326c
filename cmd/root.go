package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redhouse-home/heatctl/config"
	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/infra/hardware"
	infralogger "github.com/redhouse-home/heatctl/infra/logger"
	"github.com/redhouse-home/heatctl/infra/record"
	"github.com/redhouse-home/heatctl/infra/store"
)

var (
	cfgPath string
	verbose bool
	dryRun  bool

	cfg *config.Config
	loc *time.Location
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "heatctl",
	Short:         "Geothermal heat pump heating schedule planner and executor",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		infralogger.SetLevel(level)
		log = infralogger.New(cmd.Name())
		loc, err = cfg.Location.Load()
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "mock hardware, no persisted writes")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func scheduleStore() *store.ScheduleStore {
	return store.NewScheduleStore(cfg.Store.BaseDir)
}

// buildController wires the configured hardware backend behind the safety
// controller. Dry runs swap in the mock and keep the pump state untouched.
func buildController() (*pump.Controller, error) {
	var hw pump.HardwareInterface
	var err error
	if dryRun {
		hw = hardware.NewMock()
	} else {
		hw, err = hardware.New(cfg.Hardware, infralogger.New("hardware"))
		if err != nil {
			return nil, err
		}
	}
	var st pump.StateStore
	if dryRun {
		st = memStateStore{}
	} else {
		st = store.NewStateStore(cfg.Pump.StatePath, infralogger.New("state"))
	}
	return pump.NewController(hw, st, cfg.Pump.ControllerConfig(), infralogger.New("pump")), nil
}

// buildRecorder returns the load-control recorder, or a nop when Influx is
// disabled. The caller must Close the returned closer.
func buildRecorder() (plan.Recorder, func()) {
	if !cfg.Influx.Enabled {
		return plan.NopRecorder{}, func() {}
	}
	rec := record.NewInfluxRecorderWithFallback(cfg.Influx.RecorderConfig(), infralogger.New("record"))
	if c, ok := rec.(*record.InfluxRecorder); ok {
		return rec, c.Close
	}
	return rec, func() {}
}

type memStateStore struct{}

func (memStateStore) Load() (pump.State, error) { return pump.State{}, nil }
func (memStateStore) Save(pump.State) error     { return nil }
