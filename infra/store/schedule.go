package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redhouse-home/heatctl/core/sched"
)

const scheduleFilePrefix = "heating_program_schedule_"

// ScheduleStore keeps one JSON artifact per program day under
// <base>/<YYYY-MM>/heating_program_schedule_<YYYY-MM-DD>.json.
type ScheduleStore struct {
	base string
}

// NewScheduleStore returns a store rooted at base. The directory tree is
// created on first save.
func NewScheduleStore(base string) *ScheduleStore {
	return &ScheduleStore{base: base}
}

// Path returns the artifact location for a given day.
func (st *ScheduleStore) Path(date time.Time) string {
	return filepath.Join(st.base, date.Format("2006-01"),
		scheduleFilePrefix+date.Format("2006-01-02")+".json")
}

// LatestDate scans the store and returns the program day of the newest
// artifact, or ErrNoSchedule when nothing has been saved yet.
func (st *ScheduleStore) LatestDate(loc *time.Location) (time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(st.base, "*", scheduleFilePrefix+"*.json"))
	if err != nil {
		return time.Time{}, fmt.Errorf("scan schedule store: %w", err)
	}
	var latest time.Time
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), scheduleFilePrefix), ".json")
		d, err := time.ParseInLocation("2006-01-02", name, loc)
		if err != nil {
			continue
		}
		if d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return time.Time{}, sched.ErrNoSchedule
	}
	return latest, nil
}

// Load reads and validates the artifact for the given local day.
func (st *ScheduleStore) Load(date time.Time) (*sched.Schedule, error) {
	raw, err := os.ReadFile(st.Path(date))
	if os.IsNotExist(err) {
		return nil, sched.ErrNoSchedule
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var s sched.Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", st.Path(date), err)
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if err := s.Validate(day.Location()); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", st.Path(date), err)
	}
	return &s, nil
}

// Save writes the artifact atomically: a temp file in the target directory
// followed by a rename, so a crash never leaves a half-written schedule.
func (st *ScheduleStore) Save(s *sched.Schedule) error {
	// Only the calendar date matters for the path, so parse it zone-free.
	date, err := time.Parse("2006-01-02", s.ProgramDate)
	if err != nil {
		return fmt.Errorf("bad program_date %q: %w", s.ProgramDate, err)
	}
	path := st.Path(date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	return writeAtomic(path, raw)
}

func writeAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
