package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/core/sched"
	"github.com/redhouse-home/heatctl/infra/logger"
)

func testSchedule(t *testing.T) (*sched.Schedule, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, loc)
	return scheduleFor(t, day), day
}

func scheduleFor(t *testing.T, day time.Time) *sched.Schedule {
	t.Helper()
	slots := make([]sched.SlotInput, 24)
	for i := range slots {
		slots[i] = sched.SlotInput{Start: day.Add(time.Duration(i) * time.Hour), PriceCt: 12.5}
	}
	s, err := sched.Build(sched.BuildInput{
		Date:          day,
		GeneratedAt:   day,
		SlotDuration:  time.Hour,
		Slots:         slots,
		Heating:       map[int]bool{3: true},
		BaseLoadKW:    1,
		HeatingLoadKW: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScheduleRoundTrip(t *testing.T) {
	st := NewScheduleStore(t.TempDir())
	s, day := testSchedule(t)

	if err := st.Save(s); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("2026-01", "heating_program_schedule_2026-01-15.json")
	if !strings.HasSuffix(st.Path(day), want) {
		t.Errorf("path = %s, want suffix %s", st.Path(day), want)
	}

	got, err := st.Load(day)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != s.ID || got.ProgramDate != s.ProgramDate {
		t.Errorf("reloaded %s/%s, want %s/%s", got.ID, got.ProgramDate, s.ID, s.ProgramDate)
	}
	if len(got.Entries) != 24 {
		t.Fatalf("reloaded %d entries, want 24", len(got.Entries))
	}
	if !got.Entries[3].Heating || got.Entries[3].Mode.String() != "ON" {
		t.Error("heating slot lost in round trip")
	}
	if !got.Entries[0].Start.Equal(day) {
		t.Errorf("first start = %v, want %v", got.Entries[0].Start, day)
	}
}

func TestScheduleLoadMissing(t *testing.T) {
	st := NewScheduleStore(t.TempDir())
	_, day := testSchedule(t)
	if _, err := st.Load(day); !errors.Is(err, sched.ErrNoSchedule) {
		t.Fatalf("err = %v, want ErrNoSchedule", err)
	}
}

func TestScheduleLoadRejectsBadVersion(t *testing.T) {
	base := t.TempDir()
	st := NewScheduleStore(base)
	_, day := testSchedule(t)
	raw := `{"version":"1.0.0","program_date":"2026-01-15","schedule":[]}`
	path := st.Path(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(day); err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("err = %v, want version rejection", err)
	}
}

func TestScheduleLoadRejectsCorruptJSON(t *testing.T) {
	st := NewScheduleStore(t.TempDir())
	_, day := testSchedule(t)
	path := st.Path(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(day); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()
	st := NewScheduleStore(base)
	s, day := testSchedule(t)
	if err := st.Save(s); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Dir(st.Path(day)))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d files, want only the artifact", len(entries))
	}
}

func TestScheduleLatestDate(t *testing.T) {
	st := NewScheduleStore(t.TempDir())
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.LatestDate(loc); !errors.Is(err, sched.ErrNoSchedule) {
		t.Fatalf("empty store: err = %v, want ErrNoSchedule", err)
	}

	want := time.Date(2026, 2, 3, 0, 0, 0, 0, loc)
	for _, day := range []time.Time{
		time.Date(2026, 1, 15, 0, 0, 0, 0, loc),
		want,
		time.Date(2026, 1, 31, 0, 0, 0, 0, loc),
	} {
		if err := st.Save(scheduleFor(t, day)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.LatestDate(loc)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Errorf("latest = %v, want %v", got, want)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pump_state.json")
	st := NewStateStore(path, logger.NopLogger{})

	want := pump.State{
		AccumulatedRunSeconds: 4200,
		LastCommand:           "ON",
		LastCommandTime:       1770000000,
		LastCycleTime:         1769990000,
	}
	if err := st.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}
}

func TestStateMissingAndCorruptYieldDefaults(t *testing.T) {
	dir := t.TempDir()
	st := NewStateStore(filepath.Join(dir, "absent.json"), logger.NopLogger{})
	got, err := st.Load()
	if err != nil || got != (pump.State{}) {
		t.Fatalf("missing file: state %+v err %v, want defaults", got, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	st = NewStateStore(corrupt, logger.NopLogger{})
	got, err = st.Load()
	if err != nil || got != (pump.State{}) {
		t.Fatalf("corrupt file: state %+v err %v, want defaults", got, err)
	}
}
