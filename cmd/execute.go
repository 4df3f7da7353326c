package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/redhouse-home/heatctl/core/executor"
)

var execForce bool

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run one executor tick against today's schedule",
	RunE:  runExecute,
}

func init() {
	executeCmd.Flags().BoolVar(&execForce, "force", false, "re-execute the currently due slot even if already done")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	exec, closeFn, err := buildExecutor(executor.NopObserver{})
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := exec.Tick(cmd.Context())
	if err != nil {
		return err
	}
	logReport(report)
	return nil
}

// buildExecutor wires the executor from config. The returned func releases
// the recorder connection.
func buildExecutor(obs executor.Observer) (*executor.Executor, func(), error) {
	ctrl, err := buildController()
	if err != nil {
		return nil, nil, err
	}
	rec, closeRec := buildRecorder()
	ecfg := executor.Config{
		MaxExecutionDelay: time.Duration(cfg.Pump.MaxDelaySeconds) * time.Second,
		MergeWindow:       time.Duration(cfg.Executor.MergeWindowMinutes) * time.Minute,
		Force:             execForce,
		DryRun:            dryRun,
	}
	return executor.New(scheduleStore(), ctrl, rec, obs, ecfg, loc, log), closeRec, nil
}

func logReport(r executor.TickReport) {
	if r.NoSchedule {
		log.Infof("no schedule for today, nothing to do")
		return
	}
	log.Infof("tick done: executed=%d skipped=%d failed=%d merged=%d cycle=%v",
		r.Executed, r.Skipped, r.Failed, r.Merged, r.CyclePerformed)
	if r.NextExecution != nil {
		log.Infof("next execution at %s", r.NextExecution.Format(time.RFC3339))
	}
}
