package scenarios

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/redhouse-home/heatctl/core/curve"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/sched"
	"github.com/redhouse-home/heatctl/infra/logger"
)

// RunScenario plans the scenario's day and checks the resulting slot
// decisions against the expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	tz := sc.Timezone
	if tz == "" {
		tz = "Europe/Helsinki"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("timezone: %v", err)
	}
	date, err := time.ParseInLocation("2006-01-02", sc.Date, loc)
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	c, err := curve.New(curve.DefaultAnchors(), 0.25, 0.25)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}

	st := &memStore{}
	gen := plan.NewGenerator(&sc.Forecast, c, st, nil, sc.Planner.ToPlan(), loc, logger.NopLogger{})
	s, err := gen.Generate(context.Background(), date, plan.Options{DateOffset: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := s.PlanningResults.HeatingHours; got != sc.Expected.HeatingHours {
		t.Errorf("heating hours: got %.2f, want %.2f", got, sc.Expected.HeatingHours)
	}
	if len(s.Entries) != sc.Expected.Entries {
		t.Fatalf("entries: got %d, want %d", len(s.Entries), sc.Expected.Entries)
	}
	if st.saved != s {
		t.Errorf("generated schedule was not stored")
	}

	wantMode := make(map[int]model.Mode, len(s.Entries))
	for i := range s.Entries {
		wantMode[i] = model.ModeLowPower
	}
	for _, i := range sc.Expected.BlockedSlots {
		wantMode[i] = model.ModeBlocked
	}
	for _, i := range sc.Expected.HeatingSlots {
		wantMode[i] = model.ModeRun
	}
	for i, e := range s.Entries {
		if e.Mode != wantMode[i] {
			t.Errorf("slot %d (%s): got %s, want %s",
				i, e.Start.Format("15:04"), e.Mode.String(), wantMode[i].String())
		}
	}

	var heatIdx []int
	for i, e := range s.Entries {
		if e.Heating {
			heatIdx = append(heatIdx, i)
		}
	}
	want := append([]int(nil), sc.Expected.HeatingSlots...)
	sort.Ints(want)
	if !equalInts(heatIdx, want) {
		t.Errorf("heating slots: got %v, want %v", heatIdx, want)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type memStore struct {
	saved *sched.Schedule
}

func (m *memStore) Load(time.Time) (*sched.Schedule, error) {
	if m.saved == nil {
		return nil, sched.ErrNoSchedule
	}
	return m.saved, nil
}

func (m *memStore) Save(s *sched.Schedule) error {
	m.saved = s
	return nil
}
