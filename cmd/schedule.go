package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/sched"
)

var (
	schedDate string

	editStart string
	editEnd   string
	editMode  string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect and adjust schedule artifacts",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the slots of a day's schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := resolveDate(schedDate)
		if err != nil {
			return err
		}
		s, err := scheduleStore().Load(date)
		if err != nil {
			return err
		}
		printSchedule(s)
		return nil
	},
}

var scheduleEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Rewrite a time window of a day's schedule to a fixed mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := resolveDate(schedDate)
		if err != nil {
			return err
		}
		mode, err := model.ParseMode(editMode)
		if err != nil {
			return err
		}
		start, err := clockOn(date, editStart)
		if err != nil {
			return fmt.Errorf("bad --start: %w", err)
		}
		end, err := clockOn(date, editEnd)
		if err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}

		st := scheduleStore()
		s, err := st.Load(date)
		if err != nil {
			return err
		}
		changed, err := sched.Edit(s, start, end, mode, time.Now().In(loc))
		if err != nil {
			return err
		}
		if changed == 0 {
			log.Infof("no slots changed")
			return nil
		}
		if dryRun {
			log.Infof("%d slots would change to %s (dry run, not saved)", changed, mode.String())
			printSchedule(s)
			return nil
		}
		if err := st.Save(s); err != nil {
			return err
		}
		log.Infof("%d slots changed to %s", changed, mode.String())
		return nil
	},
}

func init() {
	scheduleCmd.PersistentFlags().StringVar(&schedDate, "date", "today", "day to operate on (YYYY-MM-DD, today, tomorrow or latest)")
	scheduleEditCmd.Flags().StringVar(&editStart, "start", "", "window start (HH:MM)")
	scheduleEditCmd.Flags().StringVar(&editEnd, "end", "", "window end (HH:MM)")
	scheduleEditCmd.Flags().StringVar(&editMode, "mode", "", "target mode (run, lowpower or blocked)")
	for _, f := range []string{"start", "end", "mode"} {
		if err := scheduleEditCmd.MarkFlagRequired(f); err != nil {
			panic(err)
		}
	}
	scheduleCmd.AddCommand(scheduleListCmd, scheduleEditCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func resolveDate(s string) (time.Time, error) {
	now := time.Now().In(loc)
	switch s {
	case "", "today":
		return now, nil
	case "tomorrow":
		return now.AddDate(0, 0, 1), nil
	case "latest":
		return scheduleStore().LatestDate(loc)
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --date %q: %w", s, err)
	}
	return d, nil
}

// clockOn anchors an HH:MM wall time on the given day.
func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func printSchedule(s *sched.Schedule) {
	fmt.Fprintf(os.Stdout, "schedule %s for %s (generated %s)\n",
		s.ID, s.ProgramDate, s.GeneratedAt.Format(time.RFC3339))
	if s.Simulation != nil {
		fmt.Fprintf(os.Stdout, "simulation artifact (base date %s), not executable\n", s.Simulation.BaseDate)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tMODE\tPRICE ct/kWh\tSOLAR kWh\tSTATUS")
	for _, e := range s.Entries {
		status := "pending"
		switch {
		case e.Execution != nil && e.Execution.Skipped:
			status = "skipped"
		case e.Executed():
			status = "done"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
			e.Start.In(loc).Format("15:04"), e.End.In(loc).Format("15:04"),
			e.Mode.String(), e.PriceCt, e.SolarKWh, status)
	}
	w.Flush()
	fmt.Fprintf(os.Stdout, "executed %d/%d intervals\n",
		s.ExecutionStatus.ExecutedIntervals,
		s.ExecutionStatus.ExecutedIntervals+s.ExecutionStatus.PendingIntervals)
}
