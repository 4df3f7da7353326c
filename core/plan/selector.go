package plan

import (
	"math"
	"sort"
	"time"
)

// SelectHours picks the cheapest slots whose combined duration covers the
// heating budget. Partial slots are not representable, so the budget rounds
// up to the next whole slot. A budget of zero or less selects nothing; a
// budget beyond the day selects every slot. The returned slice is ordered
// by slot index.
func SelectHours(ranked []Slot, budgetHours float64, slotDur time.Duration) []Slot {
	if budgetHours <= 0 || len(ranked) == 0 {
		return nil
	}
	n := int(math.Ceil(budgetHours / slotDur.Hours()))
	if n > len(ranked) {
		n = len(ranked)
	}
	selected := append([]Slot(nil), ranked[:n]...)
	sort.Slice(selected, func(a, b int) bool { return selected[a].Index < selected[b].Index })
	return selected
}
