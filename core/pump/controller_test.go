package pump

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/infra/logger"
)

type fakeHardware struct {
	commands    []model.Mode
	aux         []bool
	auxOn       bool
	failPrimary bool
	failAux     bool
}

func (f *fakeHardware) SetPrimaryMode(_ context.Context, m model.Mode) error {
	if f.failPrimary {
		return errors.New("bus write failed")
	}
	f.commands = append(f.commands, m)
	return nil
}

func (f *fakeHardware) SetAuxiliaryPump(_ context.Context, on bool) error {
	if f.failAux {
		return errors.New("relay unreachable")
	}
	f.aux = append(f.aux, on)
	f.auxOn = on
	return nil
}

func (f *fakeHardware) Status(context.Context) (*Status, error) {
	return &Status{Mode: "fake", AuxiliaryOn: f.auxOn}, nil
}

type memStateStore struct {
	state   State
	saves   int
	loadErr error
	saveErr error
}

func (m *memStateStore) Load() (State, error) { return m.state, m.loadErr }
func (m *memStateStore) Save(s State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = s
	m.saves++
	return nil
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func testConfig() Config {
	return Config{
		CycleDuration:     30 * time.Second,
		ReliefThreshold:   105 * time.Minute,
		MaxExecutionDelay: 30 * time.Minute,
	}
}

func newTestController(t *testing.T, hw *fakeHardware, store *memStateStore) (*Controller, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)}
	c := NewController(hw, store, testConfig(), logger.NopLogger{},
		WithClock(clk.now), WithSleep(func(time.Duration) {}))
	return c, clk
}

func TestExecuteFirstCommandNoCycle(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, _ := newTestController(t, hw, store)

	res := c.Execute(context.Background(), model.ModeRun, c.now())
	if !res.OK || res.Err != nil {
		t.Fatalf("execute failed: %+v", res)
	}
	if res.CyclePerformed {
		t.Errorf("first command must not cycle")
	}
	if len(hw.commands) != 1 || hw.commands[0] != model.ModeRun {
		t.Errorf("hardware commands: %v", hw.commands)
	}
	if store.state.LastCommand != "ON" {
		t.Errorf("persisted last command: %q", store.state.LastCommand)
	}
}

func TestExecuteCyclesOnRunAfterRun(t *testing.T) {
	cases := []struct {
		prev, next model.Mode
		wantCycle  bool
	}{
		{model.ModeRun, model.ModeRun, true},
		{model.ModeLowPower, model.ModeRun, true},
		{model.ModeRun, model.ModeLowPower, true},
		{model.ModeLowPower, model.ModeLowPower, false},
		{model.ModeRun, model.ModeBlocked, false},
		{model.ModeBlocked, model.ModeRun, false},
		{model.ModeBlocked, model.ModeLowPower, false},
	}
	for _, tc := range cases {
		hw := &fakeHardware{}
		store := &memStateStore{}
		c, clk := newTestController(t, hw, store)

		if res := c.Execute(context.Background(), tc.prev, clk.t); !res.OK {
			t.Fatalf("%v->%v: setup command failed", tc.prev, tc.next)
		}
		clk.advance(10 * time.Minute)
		hw.commands = nil

		res := c.Execute(context.Background(), tc.next, clk.t)
		if !res.OK {
			t.Fatalf("%v->%v: command failed: %v", tc.prev, tc.next, res.Err)
		}
		if res.CyclePerformed != tc.wantCycle {
			t.Errorf("%v->%v: cycle=%v want %v", tc.prev, tc.next, res.CyclePerformed, tc.wantCycle)
		}
		if tc.wantCycle {
			if len(hw.commands) != 2 || hw.commands[0] != model.ModeBlocked || hw.commands[1] != tc.next {
				t.Errorf("%v->%v: expected blocked pulse then %v, got %v", tc.prev, tc.next, tc.next, hw.commands)
			}
		} else if len(hw.commands) != 1 || hw.commands[0] != tc.next {
			t.Errorf("%v->%v: expected direct %v, got %v", tc.prev, tc.next, tc.next, hw.commands)
		}
	}
}

func TestExecuteAuxiliaryPumpFollowsBlockedTransitions(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, clk := newTestController(t, hw, store)
	ctx := context.Background()

	c.Execute(ctx, model.ModeRun, clk.t)
	if len(hw.aux) != 0 {
		t.Fatalf("aux touched without blocked transition: %v", hw.aux)
	}

	clk.advance(time.Hour)
	c.Execute(ctx, model.ModeBlocked, clk.t)
	if len(hw.aux) != 1 || hw.aux[0] != false {
		t.Fatalf("entering blocked should turn aux off: %v", hw.aux)
	}

	clk.advance(time.Hour)
	c.Execute(ctx, model.ModeRun, clk.t)
	if len(hw.aux) != 2 || hw.aux[1] != true {
		t.Fatalf("leaving blocked should turn aux on: %v", hw.aux)
	}
}

func TestExecuteHardwareFailureLeavesStateUntouched(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, clk := newTestController(t, hw, store)
	ctx := context.Background()

	c.Execute(ctx, model.ModeBlocked, clk.t)
	saved := store.state
	savesBefore := store.saves

	clk.advance(10 * time.Minute)
	hw.failPrimary = true
	res := c.Execute(ctx, model.ModeRun, clk.t)
	if res.OK || res.Err == nil {
		t.Fatalf("expected failure result, got %+v", res)
	}
	if store.saves != savesBefore {
		t.Errorf("state persisted despite hardware failure")
	}
	if c.State() != saved {
		t.Errorf("in-memory state advanced: %+v want %+v", c.State(), saved)
	}
}

func TestExecuteRejectsUnknownMode(t *testing.T) {
	hw := &fakeHardware{}
	c, clk := newTestController(t, hw, &memStateStore{})
	res := c.Execute(context.Background(), model.Mode(9), clk.t)
	if res.OK || !errors.Is(res.Err, model.ErrUnknownMode) {
		t.Fatalf("expected unknown mode error, got %+v", res)
	}
	if len(hw.commands) != 0 {
		t.Errorf("hardware touched for invalid command")
	}
}

func TestRunTimeAccumulatesAndTriggersRelief(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, clk := newTestController(t, hw, store)
	ctx := context.Background()

	c.Execute(ctx, model.ModeRun, clk.t)
	// Accumulate just under the threshold in sane sub-hour steps.
	for i := 0; i < 6; i++ {
		clk.advance(15 * time.Minute)
		if c.CycleNeeded() {
			t.Fatalf("relief triggered early at %d min", (i+1)*15)
		}
	}
	clk.advance(15 * time.Minute) // 105 min total reaches the threshold
	if !c.CycleNeeded() {
		t.Fatalf("relief not triggered past threshold (run %ds)", c.State().AccumulatedRunSeconds)
	}

	res := c.PerformCycle(ctx)
	if !res.OK || !res.CyclePerformed {
		t.Fatalf("cycle failed: %+v", res)
	}
	if res.Mode != model.ModeRun {
		t.Errorf("restored mode: got %v want run", res.Mode)
	}
	n := len(hw.commands)
	if n < 2 || hw.commands[n-2] != model.ModeBlocked || hw.commands[n-1] != model.ModeRun {
		t.Errorf("expected blocked pulse then restore, got %v", hw.commands)
	}
	if c.State().AccumulatedRunSeconds != 0 {
		t.Errorf("accumulator not reset: %d", c.State().AccumulatedRunSeconds)
	}
	if c.State().LastCycleTime != clk.t.Unix() {
		t.Errorf("cycle instant not recorded")
	}
	if c.CycleNeeded() {
		t.Errorf("relief still pending after cycle")
	}
}

func TestExecuteCyclesWhenThresholdReached(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, clk := newTestController(t, hw, store)
	ctx := context.Background()

	c.Execute(ctx, model.ModeRun, clk.t)
	// Cross the threshold in sane steps, then command blocked. The
	// transition itself needs no pulse but the time rule forces one.
	for i := 0; i < 8; i++ {
		clk.advance(15 * time.Minute)
		c.CycleNeeded()
	}
	hw.commands = nil
	res := c.Execute(ctx, model.ModeBlocked, clk.t)
	if !res.OK || !res.CyclePerformed {
		t.Fatalf("expected threshold cycle: %+v", res)
	}
	if c.State().AccumulatedRunSeconds != 0 {
		t.Errorf("accumulator not reset: %d", c.State().AccumulatedRunSeconds)
	}
}

func TestRunTimeSanityWindowDiscardsLongGaps(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{}
	c, clk := newTestController(t, hw, store)

	c.Execute(context.Background(), model.ModeRun, clk.t)
	clk.advance(5 * time.Hour)
	if c.CycleNeeded() {
		t.Fatalf("stale span should be discarded, not accumulated")
	}
	if got := c.State().AccumulatedRunSeconds; got != 0 {
		t.Errorf("accumulated %ds from a discarded span", got)
	}
}

func TestFailedCycleDoesNotAbortCommand(t *testing.T) {
	inner := &fakeHardware{}
	hw := &pulseFailHardware{inner: inner}
	store := &memStateStore{}
	clk := &fakeClock{t: time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)}
	c := NewController(hw, store, testConfig(), logger.NopLogger{},
		WithClock(clk.now), WithSleep(func(time.Duration) {}))
	ctx := context.Background()

	if res := c.Execute(ctx, model.ModeRun, clk.t); !res.OK {
		t.Fatalf("setup command failed: %+v", res)
	}
	clk.advance(10 * time.Minute)

	// Run after run triggers the pulse; the pulse fails but the outer
	// command still goes through.
	res := c.Execute(ctx, model.ModeRun, clk.t)
	if !res.OK || res.Err != nil {
		t.Fatalf("command aborted by failed cycle: %+v", res)
	}
	if res.CyclePerformed {
		t.Errorf("failed cycle reported as performed")
	}
	if n := len(inner.commands); n == 0 || inner.commands[n-1] != model.ModeRun {
		t.Errorf("target command not applied: %v", inner.commands)
	}
}

type pulseFailHardware struct {
	inner *fakeHardware
	n     int
}

func (p *pulseFailHardware) SetPrimaryMode(ctx context.Context, m model.Mode) error {
	p.n++
	if m == model.ModeBlocked {
		return errors.New("pulse failed")
	}
	return p.inner.SetPrimaryMode(ctx, m)
}

func (p *pulseFailHardware) SetAuxiliaryPump(ctx context.Context, on bool) error {
	return p.inner.SetAuxiliaryPump(ctx, on)
}

func (p *pulseFailHardware) Status(ctx context.Context) (*Status, error) {
	return p.inner.Status(ctx)
}

func TestUnreadableStateFallsBackToDefaults(t *testing.T) {
	store := &memStateStore{loadErr: errors.New("corrupt json")}
	c, _ := newTestController(t, &fakeHardware{}, store)
	if c.State() != (State{}) {
		t.Fatalf("expected zero state, got %+v", c.State())
	}
}

func TestStatePersistFailureKeepsCommandSuccessful(t *testing.T) {
	hw := &fakeHardware{}
	store := &memStateStore{saveErr: errors.New("disk full")}
	c, clk := newTestController(t, hw, store)
	res := c.Execute(context.Background(), model.ModeRun, clk.t)
	if !res.OK {
		t.Fatalf("hardware succeeded, result must be OK: %+v", res)
	}
}
