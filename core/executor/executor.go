package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/core/sched"
)

// Observer receives execution events for the metrics layer. Implementations
// must be cheap and never fail.
type Observer interface {
	ExecutionObserved(command string, success bool, delay time.Duration)
	CycleObserved(success bool)
	RunTimeObserved(seconds float64)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ExecutionObserved(string, bool, time.Duration) {}
func (NopObserver) CycleObserved(bool)                            {}
func (NopObserver) RunTimeObserved(float64)                       {}

// Config holds the executor tunables.
type Config struct {
	// MaxExecutionDelay skips commands that are older than this.
	MaxExecutionDelay time.Duration
	// MergeWindow is how long after midnight yesterday's leftovers are
	// still merged in.
	MergeWindow time.Duration
	// Force re-executes the currently due slot even when already done.
	Force bool
	// DryRun suppresses artifact writes.
	DryRun bool
}

// TickReport summarises one executor invocation.
type TickReport struct {
	Executed       int
	Skipped        int
	Failed         int
	Merged         int
	CyclePerformed bool
	NextExecution  *time.Time
	// NoSchedule is set when no artifact exists for today; the tick is a
	// successful no-op in that case.
	NoSchedule bool
}

// Executor is the per-tick driver: it loads the day's schedule, applies the
// entry that is due through the pump controller and persists the outcome.
// It owns the Schedule for the day; PumpState stays with the controller.
type Executor struct {
	store sched.Store
	ctrl  *pump.Controller
	rec   Recorder
	obs   Observer
	log   logger.Logger
	loc   *time.Location
	cfg   Config
	now   func() time.Time
}

// Recorder is the subset of the plan recorder the executor needs.
type Recorder interface {
	RecordExecution(ctx context.Context, s *sched.Schedule, e sched.Entry) error
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(context.Context, *sched.Schedule, sched.Entry) error { return nil }

// New wires an executor. rec and obs may be nil.
func New(store sched.Store, ctrl *pump.Controller, rec Recorder, obs Observer, cfg Config, loc *time.Location, log logger.Logger) *Executor {
	if rec == nil {
		rec = nopRecorder{}
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Executor{store: store, ctrl: ctrl, rec: rec, obs: obs, cfg: cfg, loc: loc, log: log, now: time.Now}
}

// WithClock replaces the executor's time source.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Tick runs one execution pass. Having no schedule for today is not an
// error; every other failure is returned after being recorded.
func (e *Executor) Tick(ctx context.Context) (TickReport, error) {
	now := e.now().In(e.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	var report TickReport

	s, err := e.store.Load(day)
	if errors.Is(err, sched.ErrNoSchedule) {
		e.log.Infof("no schedule for %s, nothing to do", day.Format("2006-01-02"))
		report.NoSchedule = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("load schedule: %w", err)
	}
	if s.Simulation != nil {
		return report, fmt.Errorf("schedule %s is a simulation artifact, refusing to execute", s.ID)
	}

	if now.Sub(day) < e.cfg.MergeWindow {
		report.Merged = e.mergeYesterday(s, day)
	}

	dirty := report.Merged > 0
	for i := range s.Entries {
		en := &s.Entries[i]
		if en.Start.After(now) {
			t := en.Start
			report.NextExecution = &t
			break
		}
		due := en.Contains(now)
		if en.Executed() && !(e.cfg.Force && due) {
			continue
		}
		delay := now.Sub(en.Start)
		if !due && delay > e.cfg.MaxExecutionDelay {
			e.log.Warnf("skipping %s at %s: %s late (max %s)", en.Mode, en.Start.Format(time.RFC3339), delay, e.cfg.MaxExecutionDelay)
			en.Execution = &sched.ExecutionRecord{
				Command:       en.Mode.String(),
				ScheduledTime: en.Start.Unix(),
				ActualTime:    now.Unix(),
				DelaySeconds:  int64(delay / time.Second),
				Skipped:       true,
			}
			ts := now
			en.ExecutedAt = &ts
			report.Skipped++
			dirty = true
			continue
		}

		res := e.ctrl.Execute(ctx, en.Mode, en.Start)
		rec := sched.ExecutionRecord{
			Success:        res.OK,
			Command:        en.Mode.String(),
			ScheduledTime:  en.Start.Unix(),
			ActualTime:     res.ExecutedAt.Unix(),
			DelaySeconds:   int64(res.Delay / time.Second),
			CyclePerformed: res.CyclePerformed,
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		en.Execution = &rec
		e.obs.ExecutionObserved(en.Mode.String(), res.OK, res.Delay)
		if res.OK {
			ts := res.ExecutedAt
			en.ExecutedAt = &ts
			report.Executed++
		} else {
			// Left unexecuted: retried next tick until the delay cap
			// marks it skipped.
			report.Failed++
			e.log.Errorf("execute %s at %s failed: %v", en.Mode, en.Start.Format(time.RFC3339), res.Err)
		}
		dirty = true
		if err := e.persist(s); err != nil {
			return report, err
		}
		if err := e.rec.RecordExecution(ctx, s, *en); err != nil {
			e.log.Errorf("record execution: %v", err)
		}
	}

	// Periodic relief runs even when no entry was due.
	if e.ctrl.CycleNeeded() {
		e.log.Infof("periodic relief threshold reached")
		res := e.ctrl.PerformCycle(ctx)
		e.obs.CycleObserved(res.OK)
		if res.OK {
			report.CyclePerformed = true
			s.ExecutionStatus.CyclePerformed = true
			dirty = true
		} else {
			e.log.Errorf("periodic relief cycle failed: %v", res.Err)
		}
	}
	e.obs.RunTimeObserved(float64(e.ctrl.State().AccumulatedRunSeconds))

	if dirty {
		s.RefreshStatus(now)
		if err := e.persist(s); err != nil {
			return report, err
		}
	}
	e.log.Infof("tick complete: %d executed, %d skipped, %d failed", report.Executed, report.Skipped, report.Failed)
	return report, nil
}

// mergeYesterday pulls unexecuted entries from yesterday's schedule into
// today's, so a late schedule generation or downtime around midnight does
// not silently drop in-flight obligations.
func (e *Executor) mergeYesterday(s *sched.Schedule, day time.Time) int {
	ys, err := e.store.Load(day.AddDate(0, 0, -1))
	if errors.Is(err, sched.ErrNoSchedule) {
		return 0
	}
	if err != nil {
		e.log.Warnf("yesterday's schedule unreadable, skipping merge: %v", err)
		return 0
	}
	existing := make(map[int64]bool, len(s.Entries))
	for _, en := range s.Entries {
		existing[en.Timestamp] = true
	}
	merged := 0
	for _, en := range ys.Entries {
		if en.Executed() || existing[en.Timestamp] {
			continue
		}
		e.log.Infof("merging unexecuted %s from yesterday at %s", en.Mode, en.Start.Format(time.RFC3339))
		s.Entries = append(s.Entries, en)
		merged++
	}
	if merged > 0 {
		sort.Slice(s.Entries, func(a, b int) bool { return s.Entries[a].Start.Before(s.Entries[b].Start) })
		e.log.Infof("merged %d entries from yesterday", merged)
	}
	return merged
}

func (e *Executor) persist(s *sched.Schedule) error {
	if e.cfg.DryRun {
		return nil
	}
	if err := e.store.Save(s); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}
