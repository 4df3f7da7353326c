package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	coreforecast "github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/sched"
	"github.com/redhouse-home/heatctl/infra/forecast"
	infralogger "github.com/redhouse-home/heatctl/infra/logger"
	"github.com/redhouse-home/heatctl/infra/store"
)

var (
	genDateOffset int
	genSimulation bool
	genBaseDate   string
	genOutputDir  string
	genFixture    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Plan the heating schedule for a day",
	Long: `Fetches price, solar and temperature forecasts, runs the optimizer and
writes the versioned schedule artifact. By default it plans tomorrow.
With --simulation and --base-date it re-plans a past day from historical
data as a backtest; such artifacts are never executed.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&genDateOffset, "date-offset", 1, "plan for today+N days")
	generateCmd.Flags().BoolVar(&genSimulation, "simulation", false, "backtest a past day, artifact marked non-executable")
	generateCmd.Flags().StringVar(&genBaseDate, "base-date", "", "day to plan in simulation mode (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&genOutputDir, "output-dir", "", "write the artifact under this directory instead of the configured store")
	generateCmd.Flags().StringVar(&genFixture, "fixture", "", "plan from a YAML forecast fixture instead of InfluxDB")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	target := time.Now().In(loc).AddDate(0, 0, genDateOffset)
	var sim *sched.SimulationInfo
	if genSimulation {
		if genBaseDate == "" {
			return fmt.Errorf("--simulation requires --base-date")
		}
		base, err := time.ParseInLocation("2006-01-02", genBaseDate, loc)
		if err != nil {
			return fmt.Errorf("bad base date: %w", err)
		}
		target = base
		sim = &sched.SimulationInfo{Mode: "simulation", BaseDate: genBaseDate}
	}

	src, err := buildSource()
	if err != nil {
		return err
	}

	st, printOnly := planStore()
	rec, closeRec := buildRecorder()
	defer closeRec()
	if genSimulation || dryRun {
		rec = plan.NopRecorder{}
	}

	curve, err := cfg.Curve.Build()
	if err != nil {
		return err
	}
	gen := plan.NewGenerator(src, curve, st, rec, cfg.Planner.PlanConfig(), loc, log)
	s, err := gen.Generate(cmd.Context(), target, plan.Options{DateOffset: genDateOffset, Simulation: sim})
	if err != nil {
		return err
	}

	if printOnly {
		out, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	}
	log.Infof("schedule for %s written to %s", s.ProgramDate, scheduleStorePath(st, target))
	return nil
}

func buildSource() (coreforecast.Source, error) {
	if genFixture != "" {
		return coreforecast.LoadStatic(genFixture)
	}
	if !cfg.Influx.Enabled {
		return nil, fmt.Errorf("influx is disabled and no --fixture given, nothing to plan from")
	}
	return forecast.NewInfluxSource(cfg.Influx.ForecastConfig(), infralogger.New("forecast")), nil
}

// planStore picks where the artifact goes. Dry runs and simulations
// without an explicit output dir only print the artifact.
func planStore() (sched.Store, bool) {
	if dryRun || (genSimulation && genOutputDir == "") {
		return discardStore{}, true
	}
	if genOutputDir != "" {
		return store.NewScheduleStore(genOutputDir), false
	}
	return scheduleStore(), false
}

func scheduleStorePath(st sched.Store, date time.Time) string {
	if fs, ok := st.(*store.ScheduleStore); ok {
		return fs.Path(date)
	}
	return ""
}

type discardStore struct{}

func (discardStore) Load(time.Time) (*sched.Schedule, error) { return nil, sched.ErrNoSchedule }
func (discardStore) Save(*sched.Schedule) error              { return nil }
