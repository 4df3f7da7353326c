package sched

import (
	"testing"
	"time"

	"github.com/redhouse-home/heatctl/core/model"
)

func testDay(t *testing.T) (time.Time, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, 1, 15, 0, 0, 0, 0, loc), loc
}

func hourlySlots(day time.Time, n int) []SlotInput {
	slots := make([]SlotInput, n)
	for i := range slots {
		slots[i] = SlotInput{Start: day.Add(time.Duration(i) * time.Hour), PriceCt: float64(i)}
	}
	return slots
}

func buildTestSchedule(t *testing.T, heating, blocked map[int]bool) *Schedule {
	t.Helper()
	day, _ := testDay(t)
	s, err := Build(BuildInput{
		Date:          day,
		GeneratedAt:   day.Add(-6 * time.Hour),
		SlotDuration:  time.Hour,
		Slots:         hourlySlots(day, 24),
		Heating:       heating,
		Blocked:       blocked,
		BaseLoadKW:    1.0,
		HeatingLoadKW: 3.0,
		Params:        InputParameters{BaseLoadKW: 1.0, HeatingLoadKW: 3.0},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return s
}

func TestBuildCoversFullDay(t *testing.T) {
	s := buildTestSchedule(t, map[int]bool{3: true, 4: true}, map[int]bool{10: true, 11: true})
	_, loc := testDay(t)
	if err := s.Validate(loc); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(s.Entries) != 24 {
		t.Fatalf("expected 24 entries, got %d", len(s.Entries))
	}
	if s.ID == "" || s.Version != Version {
		t.Errorf("missing artifact metadata: id=%q version=%q", s.ID, s.Version)
	}
}

func TestBuildModeOverlay(t *testing.T) {
	s := buildTestSchedule(t, map[int]bool{3: true}, map[int]bool{3: true, 10: true})
	if got := s.Entries[3].Mode; got != model.ModeRun {
		t.Errorf("heating slot overridden by block window: got %v", got)
	}
	if got := s.Entries[10].Mode; got != model.ModeBlocked {
		t.Errorf("blocked slot: got %v", got)
	}
	if got := s.Entries[0].Mode; got != model.ModeLowPower {
		t.Errorf("default slot: got %v", got)
	}
	if got := s.Entries[3].PowerKW; got != 4.0 {
		t.Errorf("heating slot power: got %.1f want 4.0", got)
	}
	if got := s.Entries[10].PowerKW; got != 1.0 {
		t.Errorf("blocked slot power: got %.1f want 1.0", got)
	}
}

func TestBuildDSTDayLength(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2026-03-29 is the spring-forward day in Helsinki: 23 local hours.
	day := time.Date(2026, 3, 29, 0, 0, 0, 0, loc)
	n := int(day.AddDate(0, 0, 1).Sub(day) / time.Hour)
	if n != 23 {
		t.Fatalf("expected 23 hours on DST day, got %d", n)
	}
	s, err := Build(BuildInput{
		Date:         day,
		GeneratedAt:  day,
		SlotDuration: time.Hour,
		Slots:        hourlySlots(day, n),
		BaseLoadKW:   1.0,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := s.Validate(loc); err != nil {
		t.Fatalf("validate DST day: %v", err)
	}
}

func TestValidateRejectsGaps(t *testing.T) {
	s := buildTestSchedule(t, nil, nil)
	_, loc := testDay(t)
	s.Entries = append(s.Entries[:5], s.Entries[6:]...)
	if err := s.Validate(loc); err == nil {
		t.Fatalf("expected validation error for gap")
	}
}

func TestRefreshStatusBuiltSchedule(t *testing.T) {
	s := buildTestSchedule(t, nil, nil)
	day, _ := testDay(t)
	done := day.Add(90 * time.Minute)
	s.Entries[0].ExecutedAt = &done
	s.Entries[1].ExecutedAt = &done
	s.RefreshStatus(day.Add(2 * time.Hour))
	if s.ExecutionStatus.ExecutedIntervals != 2 {
		t.Errorf("executed: got %d", s.ExecutionStatus.ExecutedIntervals)
	}
	if s.ExecutionStatus.PendingIntervals != 22 {
		t.Errorf("pending: got %d", s.ExecutionStatus.PendingIntervals)
	}
	if s.ExecutionStatus.NextExecution == nil || !s.ExecutionStatus.NextExecution.Equal(day.Add(3*time.Hour)) {
		t.Errorf("next execution: got %v", s.ExecutionStatus.NextExecution)
	}
}
