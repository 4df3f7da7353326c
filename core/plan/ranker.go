package plan

import (
	"math"
	"sort"
	"time"

	"github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/logger"
)

// Slot is one planning interval with its effective heating cost.
type Slot struct {
	Index    int
	Start    time.Time
	PriceCt  float64
	SellCt   float64
	SolarKWh float64
	// Score is the cost of running the heating load during this slot in
	// cents, after crediting forecast solar production. Lower is better.
	Score float64
}

// CostConfig parameterises the slot cost model.
type CostConfig struct {
	BaseLoadKW    float64
	HeatingLoadKW float64
	// SolarWeight scales how much of the forecast production is trusted
	// when offsetting grid purchases. 1.0 takes the forecast at face value.
	SolarWeight float64
	// ResolutionMinutes is the expected slot length. Other resolutions are
	// accepted with a warning.
	ResolutionMinutes int
}

// RankSlots scores every slot of the day and returns them sorted by
// ascending score, ties broken by the earlier slot. Series of unequal
// length are trimmed to their common prefix with a warning.
func RankSlots(day time.Time, slotDur time.Duration, prices forecast.Prices, solar []float64, cfg CostConfig, log logger.Logger) []Slot {
	resolution := int(slotDur / time.Minute)
	if resolution != 15 && resolution != 60 {
		log.Warnf("unusual slot resolution %d min, proceeding anyway", resolution)
	}
	if cfg.ResolutionMinutes != 0 && resolution != cfg.ResolutionMinutes {
		log.Warnf("slot resolution %d min differs from configured %d min", resolution, cfg.ResolutionMinutes)
	}

	n := len(prices.TotalCt)
	if len(prices.SellCt) < n {
		log.Warnf("sell price series shorter than total (%d < %d), trimming", len(prices.SellCt), n)
		n = len(prices.SellCt)
	}
	if len(solar) < n {
		log.Warnf("solar series shorter than prices (%d < %d), trimming", len(solar), n)
		n = len(solar)
	}

	hours := slotDur.Hours()
	baseEnergy := cfg.BaseLoadKW * hours
	heatEnergy := cfg.HeatingLoadKW * hours

	slots := make([]Slot, n)
	for i := 0; i < n; i++ {
		usable := cfg.SolarWeight * solar[i]
		if usable < 0 {
			usable = 0
		}
		// Solar production offsets the base load first; only the surplus
		// is credited against heating.
		solarForBase := math.Min(usable, baseEnergy)
		solarForHeat := math.Min(usable-solarForBase, heatEnergy)
		bought := heatEnergy - solarForHeat
		slots[i] = Slot{
			Index:    i,
			Start:    day.Add(time.Duration(i) * slotDur),
			PriceCt:  prices.TotalCt[i],
			SellCt:   prices.SellCt[i],
			SolarKWh: solar[i],
			Score:    prices.TotalCt[i]*bought + prices.SellCt[i]*solarForHeat,
		}
	}

	ranked := append([]Slot(nil), slots...)
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score < ranked[b].Score })
	return ranked
}
