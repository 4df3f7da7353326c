package plan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redhouse-home/heatctl/core/curve"
	"github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/sched"
)

// Config holds the planner tunables.
type Config struct {
	SolarWeight       float64
	BlockThresholdCt  float64
	BlockMaxHours     int
	GapMergeSlots     int
	BaseLoadKW        float64
	HeatingLoadKW     float64
	ResolutionMinutes int
}

// Generator runs the full planning pipeline for one day: forecasts in,
// versioned schedule artifact out.
type Generator struct {
	src   forecast.Source
	curve *curve.Curve
	store sched.Store
	rec   Recorder
	log   logger.Logger
	cfg   Config
	loc   *time.Location
	now   func() time.Time
}

// NewGenerator wires a generator. rec may be nil to disable plan recording.
func NewGenerator(src forecast.Source, c *curve.Curve, store sched.Store, rec Recorder, cfg Config, loc *time.Location, log logger.Logger) *Generator {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Generator{src: src, curve: c, store: store, rec: rec, cfg: cfg, loc: loc, log: log, now: time.Now}
}

// WithClock replaces the generator's time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Options carries per-run generation parameters. A non-nil Simulation marks
// the artifact as a backtest so a live executor never picks it up.
type Options struct {
	DateOffset int
	Simulation *sched.SimulationInfo
}

// Generate plans the schedule for the given date (any instant within the
// target local day). Missing forecast inputs abort with an error; a partial
// schedule is never produced.
func (g *Generator) Generate(ctx context.Context, date time.Time, opts Options) (*sched.Schedule, error) {
	day := midnight(date.In(g.loc))
	dayEnd := day.AddDate(0, 0, 1)
	slotDur := time.Duration(g.cfg.ResolutionMinutes) * time.Minute
	if slotDur <= 0 {
		slotDur = time.Hour
	}
	slotCount := int(dayEnd.Sub(day) / slotDur)
	g.log.Infof("generating schedule for %s (%d slots of %s)", day.Format("2006-01-02"), slotCount, slotDur)

	prices, err := g.src.Prices(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	solar, err := g.src.Solar(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("fetch solar forecast: %w", err)
	}
	temps, err := g.src.OutdoorTemp(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("fetch temperature forecast: %w", err)
	}
	if len(temps) == 0 || len(prices.TotalCt) == 0 {
		return nil, fmt.Errorf("empty forecast input for %s", day.Format("2006-01-02"))
	}

	avgTemp := mean(temps)
	hoursToHeat := g.curve.Hours(avgTemp)
	g.log.Infof("average forecast temperature %.1fC, heating budget %.2f h", avgTemp, hoursToHeat)

	ranked := RankSlots(day, slotDur, prices, solar, CostConfig{
		BaseLoadKW:        g.cfg.BaseLoadKW,
		HeatingLoadKW:     g.cfg.HeatingLoadKW,
		SolarWeight:       g.cfg.SolarWeight,
		ResolutionMinutes: g.cfg.ResolutionMinutes,
	}, g.log)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no usable slots for %s", day.Format("2006-01-02"))
	}
	if len(ranked) < slotCount {
		g.log.Warnf("forecast covers only %d of %d slots, planning over the overlap", len(ranked), slotCount)
		slotCount = len(ranked)
	}

	selected := SelectHours(ranked, hoursToHeat, slotDur)
	heating := make(map[int]bool, len(selected))
	for _, s := range selected {
		heating[s.Index] = true
	}

	maxBlocked := slotCount - int(math.Ceil(hoursToHeat/slotDur.Hours())) - 2
	windows := BlockWindows(bySlotIndex(ranked), heating, slotDur, BlockConfig{
		ThresholdCt:     g.cfg.BlockThresholdCt,
		MaxSlots:        int(float64(g.cfg.BlockMaxHours) / slotDur.Hours()),
		GapMergeSlots:   g.cfg.GapMergeSlots,
		MaxBlockedSlots: maxBlocked,
	}, g.log)
	blocked := make(map[int]bool)
	for _, w := range windows {
		for i := w.FirstIdx; i <= w.LastIdx; i++ {
			blocked[i] = true
		}
	}

	slots := make([]sched.SlotInput, slotCount)
	for _, s := range bySlotIndex(ranked)[:slotCount] {
		slots[s.Index] = sched.SlotInput{
			Start:       s.Start,
			PriceCt:     s.PriceCt,
			SolarKWh:    s.SolarKWh,
			HeatingPrio: s.Score,
		}
	}

	var heatingCost float64
	for _, s := range selected {
		heatingCost += s.Score
	}
	results := sched.PlanningResults{
		HeatingHours:   hoursToHeat,
		SelectedSlots:  len(selected),
		BlockWindows:   len(windows),
		HeatingCostCt:  round2(heatingCost),
		CheapestSlotCt: round2(ranked[0].Score),
		PriciestSlotCt: round2(ranked[len(ranked)-1].Score),
	}
	params := sched.InputParameters{
		DateOffset:       opts.DateOffset,
		AvgTemperatureC:  round2(avgTemp),
		CurveAnchors:     g.curve.Anchors(),
		BaseLoadKW:       g.cfg.BaseLoadKW,
		HeatingLoadKW:    g.cfg.HeatingLoadKW,
		SolarWeight:      g.cfg.SolarWeight,
		BlockThresholdCt: g.cfg.BlockThresholdCt,
		BlockMaxHours:    g.cfg.BlockMaxHours,
	}

	s, err := sched.Build(sched.BuildInput{
		Date:          day,
		GeneratedAt:   g.now().In(g.loc),
		SlotDuration:  slotDur,
		Slots:         slots,
		Heating:       heating,
		Blocked:       blocked,
		BaseLoadKW:    g.cfg.BaseLoadKW,
		HeatingLoadKW: g.cfg.HeatingLoadKW,
		Params:        params,
		Results:       results,
		Simulation:    opts.Simulation,
	})
	if err != nil {
		return nil, err
	}

	if err := g.rec.RecordPlan(ctx, s); err != nil {
		g.log.Errorf("record plan: %v", err)
	}
	if err := g.store.Save(s); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	g.log.Infof("schedule %s saved: %d heating slots, %d block windows", s.ID, len(selected), len(windows))
	return s, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// bySlotIndex restores day order from a score-ranked slice.
func bySlotIndex(ranked []Slot) []Slot {
	out := make([]Slot, len(ranked))
	for _, s := range ranked {
		out[s.Index] = s
	}
	return out
}
