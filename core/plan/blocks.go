package plan

import (
	"sort"
	"time"

	"github.com/redhouse-home/heatctl/core/logger"
)

// Window is a contiguous run of slots held in blocked mode because heating
// there would be expensive.
type Window struct {
	Start    time.Time
	End      time.Time
	FirstIdx int
	LastIdx  int
}

// Slots returns the number of slots the window spans.
func (w Window) Slots() int { return w.LastIdx - w.FirstIdx + 1 }

// BlockConfig parameterises the block window optimizer.
type BlockConfig struct {
	// ThresholdCt: slots whose score exceeds this are blocking candidates.
	ThresholdCt float64
	// MaxSlots caps the continuous length of one window.
	MaxSlots int
	// GapMergeSlots merges two windows separated by at most this many
	// non-blocked slots, when the merged span still fits MaxSlots and the
	// gap holds no heating slot.
	GapMergeSlots int
	// MaxBlockedSlots bounds the total number of candidate slots, leaving
	// room in the day for heating and recovery. Zero or negative disables
	// blocking entirely.
	MaxBlockedSlots int
}

// BlockWindows marks slots above the price threshold as blocked and groups
// them into bounded windows. Slots selected for heating are never blocked.
// slots must be the full day in index order.
func BlockWindows(slots []Slot, heating map[int]bool, slotDur time.Duration, cfg BlockConfig, log logger.Logger) []Window {
	if cfg.MaxBlockedSlots <= 0 {
		log.Infof("no room for block windows (heating fills the day)")
		return nil
	}

	var candidates []Slot
	for _, s := range slots {
		if s.Score > cfg.ThresholdCt && !heating[s.Index] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		log.Infof("no slots expensive enough to block (threshold %.1f c/kWh)", cfg.ThresholdCt)
		return nil
	}
	// Most expensive first, so the budget cap keeps the worst offenders.
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].Score > candidates[b].Score })
	if len(candidates) > cfg.MaxBlockedSlots {
		candidates = candidates[:cfg.MaxBlockedSlots]
	}

	groups := buildGroups(candidates, cfg.MaxSlots)
	sort.Slice(groups, func(a, b int) bool { return groups[a].FirstIdx < groups[b].FirstIdx })
	merged := mergeGroups(groups, heating, cfg)

	for i := range merged {
		merged[i].Start = slots[merged[i].FirstIdx].Start
		merged[i].End = slots[merged[i].LastIdx].Start.Add(slotDur)
	}
	log.Infof("grouped %d expensive slots into %d block windows", len(candidates), len(merged))
	return merged
}

// buildGroups grows windows one candidate at a time, in descending price
// order. A candidate adjacent to an existing window extends it unless that
// would push the window past the maximum; such candidates are dropped so a
// free slot separates the blocks.
func buildGroups(candidates []Slot, maxSlots int) []Window {
	var groups []Window
	for _, c := range candidates {
		extended, rejected := false, false
		for i := range groups {
			g := &groups[i]
			switch c.Index {
			case g.FirstIdx - 1:
				if g.Slots() < maxSlots {
					g.FirstIdx = c.Index
					extended = true
				} else {
					rejected = true
				}
			case g.LastIdx + 1:
				if g.Slots() < maxSlots {
					g.LastIdx = c.Index
					extended = true
				} else {
					rejected = true
				}
			}
			if extended || rejected {
				break
			}
		}
		if !extended && !rejected {
			groups = append(groups, Window{FirstIdx: c.Index, LastIdx: c.Index})
		}
	}
	return groups
}

// mergeGroups joins index-sorted windows separated by small gaps when the
// merged span stays within the maximum and no heating slot sits in the gap.
func mergeGroups(groups []Window, heating map[int]bool, cfg BlockConfig) []Window {
	var merged []Window
	for _, g := range groups {
		if len(merged) == 0 {
			merged = append(merged, g)
			continue
		}
		prev := &merged[len(merged)-1]
		gap := g.FirstIdx - prev.LastIdx - 1
		span := g.LastIdx - prev.FirstIdx + 1
		if gap <= cfg.GapMergeSlots && span <= cfg.MaxSlots && !gapHasHeating(heating, prev.LastIdx+1, g.FirstIdx) {
			prev.LastIdx = g.LastIdx
			continue
		}
		merged = append(merged, g)
	}
	return merged
}

func gapHasHeating(heating map[int]bool, from, to int) bool {
	for i := from; i < to; i++ {
		if heating[i] {
			return true
		}
	}
	return false
}
