package pump

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
)

// ErrStatePersist wraps failures to write the controller state file.
var ErrStatePersist = errors.New("persist pump state")

// runSanityWindow bounds a single accumulation step. Gaps longer than this
// mean the process was down and the pump state is unknowable, so the span
// is discarded.
const runSanityWindow = time.Hour

// Config holds the controller's safety parameters.
type Config struct {
	// CycleDuration is how long the blocked pulse is held.
	CycleDuration time.Duration
	// ReliefThreshold is the accumulated continuous run time after which a
	// cycle is forced. It must stay below the hardware's own 120 min
	// fallback timer.
	ReliefThreshold time.Duration
	// MaxExecutionDelay is the largest scheduled-to-actual delay that is
	// executed without a warning.
	MaxExecutionDelay time.Duration
}

// ExecutionResult reports the outcome of one command. Hardware failures
// land in Err; the controller never panics.
type ExecutionResult struct {
	OK             bool
	Mode           model.Mode
	ScheduledAt    time.Time
	ExecutedAt     time.Time
	Delay          time.Duration
	CyclePerformed bool
	Err            error
}

// Controller drives the heat pump through the hardware seam and enforces
// the cycling rules that keep the hardware out of its resistive fallback
// heating mode. It owns the persisted State exclusively.
type Controller struct {
	hw    HardwareInterface
	store StateStore
	log   logger.Logger
	cfg   Config
	state State
	now   func() time.Time
	sleep func(time.Duration)
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep replaces the pulse wait, so tests do not sit through the cycle
// duration.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// NewController loads the persisted state and returns a ready controller.
// A missing or unreadable state file degrades to safe defaults with a
// warning, never an error.
func NewController(hw HardwareInterface, store StateStore, cfg Config, log logger.Logger, opts ...Option) *Controller {
	c := &Controller{hw: hw, store: store, cfg: cfg, log: log, now: time.Now, sleep: time.Sleep}
	for _, opt := range opts {
		opt(c)
	}
	st, err := store.Load()
	if err != nil {
		log.Warnf("pump state unreadable, starting from defaults: %v", err)
		st = State{}
	}
	c.state = st
	if st.LastCommand != "" {
		log.Infof("loaded pump state: run time %ds, last command %s", st.AccumulatedRunSeconds, st.LastCommand)
	}
	return c
}

// State returns a copy of the current controller state.
func (c *Controller) State() State { return c.state }

// Status reads back the hardware state.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	return c.hw.Status(ctx)
}

// Execute applies a mode that was scheduled for scheduledAt. The cycling
// rules may interleave a blocked pulse; the auxiliary circulation pump
// follows transitions in and out of blocked mode. Hardware failures are
// reported in the result and leave the persisted state untouched.
func (c *Controller) Execute(ctx context.Context, m model.Mode, scheduledAt time.Time) ExecutionResult {
	now := c.now()
	res := ExecutionResult{Mode: m, ScheduledAt: scheduledAt, ExecutedAt: now}
	if !m.Valid() {
		res.Err = fmt.Errorf("%w: %d", model.ErrUnknownMode, int(m))
		return res
	}
	res.Delay = now.Sub(scheduledAt)
	if res.Delay > c.cfg.MaxExecutionDelay {
		c.log.Warnf("command %s delayed by %s (max %s)", m, res.Delay, c.cfg.MaxExecutionDelay)
	}

	before := c.state
	c.updateRunTime(now)
	last, hasLast := c.state.LastMode()

	if c.cycleRuleApplies(m) || c.thresholdReached() {
		if err := c.pulseBlocked(ctx, now); err != nil {
			// A failed pulse is logged but does not abort the command.
			c.log.Warnf("cycle before %s failed: %v", m, err)
		} else {
			res.CyclePerformed = true
		}
	}

	leavingBlocked := hasLast && last == model.ModeBlocked && m != model.ModeBlocked
	enteringBlocked := hasLast && last != model.ModeBlocked && m == model.ModeBlocked
	if leavingBlocked {
		if err := c.hw.SetAuxiliaryPump(ctx, true); err != nil {
			c.log.Errorf("auxiliary pump on failed: %v", err)
		}
	}

	if err := c.hw.SetPrimaryMode(ctx, m); err != nil {
		if !res.CyclePerformed {
			c.state = before
		}
		res.Err = fmt.Errorf("set primary mode %s: %w", m, err)
		c.log.Errorf("command %s failed: %v", m, res.Err)
		return res
	}

	if enteringBlocked {
		if err := c.hw.SetAuxiliaryPump(ctx, false); err != nil {
			c.log.Errorf("auxiliary pump off failed: %v", err)
		}
	}

	c.state.LastCommand = m.String()
	c.state.LastCommandTime = now.Unix()
	c.persist()
	res.OK = true
	c.log.Infof("command %s applied (delay %s)", m, res.Delay)
	return res
}

// CycleNeeded reports whether accumulated run time has crossed the relief
// threshold.
func (c *Controller) CycleNeeded() bool {
	c.updateRunTime(c.now())
	return c.thresholdReached()
}

// PerformCycle pulses blocked mode and restores the previously active
// command (or run when unknown). On success the accumulator is reset and
// the cycle instant recorded.
func (c *Controller) PerformCycle(ctx context.Context) ExecutionResult {
	now := c.now()
	c.updateRunTime(now)
	res := ExecutionResult{ExecutedAt: now}
	c.log.Infof("performing relief cycle (run time was %ds)", c.state.AccumulatedRunSeconds)

	if err := c.hw.SetPrimaryMode(ctx, model.ModeBlocked); err != nil {
		res.Err = fmt.Errorf("enable blocked mode: %w", err)
		c.log.Errorf("relief cycle failed: %v", res.Err)
		return res
	}
	c.sleep(c.cfg.CycleDuration)

	restore := model.ModeRun
	if last, ok := c.state.LastMode(); ok && last != model.ModeBlocked {
		restore = last
	}
	if err := c.hw.SetPrimaryMode(ctx, restore); err != nil {
		res.Err = fmt.Errorf("restore %s after cycle: %w", restore, err)
		c.log.Errorf("relief cycle failed: %v", res.Err)
		return res
	}

	c.state.LastCommand = restore.String()
	// The pulse itself must not count as run time.
	c.state.LastCommandTime = now.Add(c.cfg.CycleDuration).Unix()
	c.state.AccumulatedRunSeconds = 0
	c.state.LastCycleTime = now.Unix()
	c.persist()

	res.OK = true
	res.CyclePerformed = true
	res.Mode = restore
	c.log.Infof("relief cycle complete, restored %s, run time reset", restore)
	return res
}

// cycleRuleApplies implements the transition rule: run after run or
// low-power, and low-power after run, require an intervening blocked pulse.
func (c *Controller) cycleRuleApplies(m model.Mode) bool {
	last, ok := c.state.LastMode()
	if !ok {
		return false
	}
	switch m {
	case model.ModeRun:
		return last == model.ModeRun || last == model.ModeLowPower
	case model.ModeLowPower:
		return last == model.ModeRun
	default:
		return false
	}
}

func (c *Controller) thresholdReached() bool {
	return time.Duration(c.state.AccumulatedRunSeconds)*time.Second >= c.cfg.ReliefThreshold
}

// updateRunTime accumulates elapsed ON time since the last accounting
// point. Spans outside the sanity window are discarded with a warning.
func (c *Controller) updateRunTime(now time.Time) {
	last, ok := c.state.LastMode()
	if !ok || last != model.ModeRun || c.state.LastCommandTime == 0 {
		return
	}
	elapsed := now.Unix() - c.state.LastCommandTime
	switch {
	case elapsed <= 0:
		return
	case elapsed >= int64(runSanityWindow/time.Second):
		c.log.Warnf("discarding %ds run span beyond sanity window", elapsed)
	default:
		c.state.AccumulatedRunSeconds += elapsed
		c.log.Debugf("run time +%ds, total %ds", elapsed, c.state.AccumulatedRunSeconds)
	}
	c.state.LastCommandTime = now.Unix()
}

// pulseBlocked is the internal cycle used before a new command: the target
// mode follows immediately, so no restore is needed.
func (c *Controller) pulseBlocked(ctx context.Context, now time.Time) error {
	c.log.Infof("blocked pulse before next command (run time was %ds)", c.state.AccumulatedRunSeconds)
	if err := c.hw.SetPrimaryMode(ctx, model.ModeBlocked); err != nil {
		return err
	}
	c.sleep(c.cfg.CycleDuration)
	c.state.AccumulatedRunSeconds = 0
	c.state.LastCycleTime = now.Unix()
	c.persist()
	return nil
}

func (c *Controller) persist() {
	if err := c.store.Save(c.state); err != nil {
		c.log.Errorf("%v: %v", ErrStatePersist, err)
	}
}
