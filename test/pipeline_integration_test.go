package test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/redhouse-home/heatctl/core/curve"
	"github.com/redhouse-home/heatctl/core/executor"
	"github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/infra/hardware"
	"github.com/redhouse-home/heatctl/infra/logger"
	"github.com/redhouse-home/heatctl/infra/metrics"
	"github.com/redhouse-home/heatctl/infra/store"
)

// counterValue sums every sample of one counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// TestPlanThenExecute drives the whole chain on disk: plan a day from a
// static forecast, then tick the executor over the stored artifact with
// mock hardware and watch the slot execute.
func TestPlanThenExecute(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, loc)

	src := &forecast.StaticSource{
		PriceTotal: repeat(5, 24),
		SolarKWh:   repeat(0, 24),
		TempC:      repeat(0, 24),
	}
	c, err := curve.New(curve.DefaultAnchors(), 0.25, 0.25)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	schedStore := store.NewScheduleStore(dir)
	gen := plan.NewGenerator(src, c, schedStore, nil, plan.Config{
		SolarWeight:       1,
		BlockThresholdCt:  100,
		BlockMaxHours:     4,
		GapMergeSlots:     1,
		BaseLoadKW:        1,
		HeatingLoadKW:     3,
		ResolutionMinutes: 60,
	}, loc, logger.NopLogger{})
	s, err := gen.Generate(context.Background(), day, plan.Options{DateOffset: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s.Entries) != 24 {
		t.Fatalf("expected 24 entries, got %d", len(s.Entries))
	}

	hw := hardware.NewMock()
	stateStore := store.NewStateStore(dir+"/pump_state.json", logger.NopLogger{})
	now := day.Add(3*time.Hour + 5*time.Minute)
	clock := func() time.Time { return now }
	ctrl := pump.NewController(hw, stateStore, pump.Config{
		CycleDuration:     30 * time.Second,
		ReliefThreshold:   6300 * time.Second,
		MaxExecutionDelay: 30 * time.Minute,
	}, logger.NopLogger{}, pump.WithClock(clock), pump.WithSleep(func(time.Duration) {}))

	reg := prometheus.NewRegistry()
	obs, err := metrics.NewPromObserverWithRegistry(reg)
	if err != nil {
		t.Fatalf("observer: %v", err)
	}

	exec := executor.New(schedStore, ctrl, nil, obs, executor.Config{
		MaxExecutionDelay: 30 * time.Minute,
		MergeWindow:       15 * time.Minute,
	}, loc, logger.NopLogger{}).WithClock(clock)

	report, err := exec.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	// Hours 0-2 are stale by 03:05, hour 3 executes.
	if report.Executed != 1 {
		t.Fatalf("executed %d slots, want 1", report.Executed)
	}
	if report.Skipped != 3 {
		t.Fatalf("skipped %d slots, want 3", report.Skipped)
	}

	cmds := hw.Commands()
	if len(cmds) != 1 || cmds[0] != model.ModeRun {
		t.Fatalf("hardware commands %v, want [ON]", cmds)
	}

	reloaded, err := schedStore.Load(day)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Entries[3].ExecutedAt == nil {
		t.Error("slot 3 not marked executed in artifact")
	}
	if reloaded.Entries[0].Execution == nil || !reloaded.Entries[0].Execution.Skipped {
		t.Error("stale slot 0 not marked skipped in artifact")
	}
	if got := reloaded.ExecutionStatus.ExecutedIntervals; got != 4 {
		t.Errorf("executed intervals %d, want 4", got)
	}

	if v := counterValue(t, reg, "heatctl_executions_total"); v != 1 {
		t.Errorf("execution counter %v, want 1", v)
	}

	// A second tick at the same instant is a no-op.
	report, err = exec.Tick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if report.Executed != 0 || report.Skipped != 0 {
		t.Fatalf("second tick re-ran work: %+v", report)
	}
}
