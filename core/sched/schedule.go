package sched

import (
	"errors"
	"fmt"
	"time"

	"github.com/redhouse-home/heatctl/core/curve"
	"github.com/redhouse-home/heatctl/core/model"
)

// Version is the schedule artifact format version. Executors reject
// artifacts from a different major version.
const Version = "2.0.0"

// GeneratorVersion tags artifacts with the producing program.
const GeneratorVersion = "heatctl-" + Version

// ErrNoSchedule is returned by a Store when no artifact exists for the
// requested date.
var ErrNoSchedule = errors.New("no schedule for date")

// Store persists schedule artifacts, one per local calendar day.
type Store interface {
	// Load returns the schedule for the given local day or ErrNoSchedule.
	Load(date time.Time) (*Schedule, error)
	Save(s *Schedule) error
}

// Schedule is the versioned full-day artifact produced by the planner and
// mutated by the executor as entries run.
type Schedule struct {
	Version          string          `json:"version"`
	ID               string          `json:"id"`
	GeneratedAt      time.Time       `json:"generated_at"`
	GeneratorVersion string          `json:"generator_version"`
	ProgramDate      string          `json:"program_date"`
	InputParameters  InputParameters `json:"input_parameters"`
	PlanningResults  PlanningResults `json:"planning_results"`
	Entries          []Entry         `json:"schedule"`
	Simulation       *SimulationInfo `json:"simulation_data,omitempty"`
	ExecutionStatus  ExecutionStatus `json:"execution_status"`
}

// InputParameters records the planner inputs so a schedule can be audited
// without the data sources that produced it.
type InputParameters struct {
	DateOffset       int            `json:"date_offset"`
	AvgTemperatureC  float64        `json:"avg_temperature_c"`
	CurveAnchors     []curve.Anchor `json:"heating_curve"`
	BaseLoadKW       float64        `json:"base_load_kw"`
	HeatingLoadKW    float64        `json:"heating_load_kw"`
	SolarWeight      float64        `json:"solar_weight"`
	BlockThresholdCt float64        `json:"block_threshold_ct_kwh"`
	BlockMaxHours    int            `json:"block_max_continuous_hours"`
}

// PlanningResults summarises the optimization outcome.
type PlanningResults struct {
	HeatingHours   float64 `json:"heating_hours"`
	SelectedSlots  int     `json:"selected_slots"`
	BlockWindows   int     `json:"block_windows"`
	HeatingCostCt  float64 `json:"estimated_heating_cost_ct"`
	CheapestSlotCt float64 `json:"cheapest_slot_ct"`
	PriciestSlotCt float64 `json:"priciest_slot_ct"`
}

// SimulationInfo marks backtest artifacts so they are never executed
// against live hardware.
type SimulationInfo struct {
	Mode     string `json:"mode"`
	BaseDate string `json:"base_date,omitempty"`
}

// ExecutionStatus is the rolling per-day execution summary.
type ExecutionStatus struct {
	ExecutedIntervals int        `json:"executed_intervals"`
	PendingIntervals  int        `json:"pending_intervals"`
	LastExecuted      *time.Time `json:"last_executed,omitempty"`
	NextExecution     *time.Time `json:"next_execution,omitempty"`
	CyclePerformed    bool       `json:"evu_cycle_performed"`
}

// Entry is one schedule slot. Entries are contiguous, non-overlapping and
// sorted by start time; the executor mutates the execution fields but never
// reorders them.
type Entry struct {
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	Timestamp   int64            `json:"timestamp"`
	Mode        model.Mode       `json:"command"`
	PowerKW     float64          `json:"power_kw"`
	PriceCt     float64          `json:"spot_price_total_c_kwh"`
	SolarKWh    float64          `json:"solar_prediction_kwh"`
	HeatingPrio float64          `json:"heating_prio_ct"`
	Heating     bool             `json:"heating_selected"`
	ExecutedAt  *time.Time       `json:"executed_at,omitempty"`
	Execution   *ExecutionRecord `json:"execution_result,omitempty"`
	Adjustments []Adjustment     `json:"adjustments,omitempty"`
}

// ExecutionRecord captures the outcome of driving one entry through the
// pump controller.
type ExecutionRecord struct {
	Success        bool   `json:"success"`
	Command        string `json:"command"`
	ScheduledTime  int64  `json:"scheduled_time"`
	ActualTime     int64  `json:"actual_time"`
	DelaySeconds   int64  `json:"delay_seconds"`
	CyclePerformed bool   `json:"evu_cycle_performed,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Adjustment records a manual or automatic change to an entry after
// generation.
type Adjustment struct {
	At      time.Time  `json:"at"`
	OldMode model.Mode `json:"old_mode"`
	NewMode model.Mode `json:"new_mode"`
	Reason  string     `json:"reason"`
}

// Executed reports whether the entry has already been applied.
func (e Entry) Executed() bool { return e.ExecutedAt != nil }

// Contains reports whether t falls inside the entry's window.
func (e Entry) Contains(t time.Time) bool {
	return !t.Before(e.Start) && t.Before(e.End)
}

// Date parses the schedule's program date as local midnight in loc.
func (s *Schedule) Date(loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s.ProgramDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad program_date %q: %w", s.ProgramDate, err)
	}
	return d, nil
}

// EntryAt returns a pointer to the entry whose window contains t, or nil.
func (s *Schedule) EntryAt(t time.Time) *Entry {
	for i := range s.Entries {
		if s.Entries[i].Contains(t) {
			return &s.Entries[i]
		}
	}
	return nil
}

// RefreshStatus recomputes the execution summary from the entries.
func (s *Schedule) RefreshStatus(now time.Time) {
	st := ExecutionStatus{CyclePerformed: s.ExecutionStatus.CyclePerformed}
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Executed() {
			st.ExecutedIntervals++
			if st.LastExecuted == nil || e.ExecutedAt.After(*st.LastExecuted) {
				st.LastExecuted = e.ExecutedAt
			}
			continue
		}
		st.PendingIntervals++
		if e.Start.After(now) && st.NextExecution == nil {
			t := e.Start
			st.NextExecution = &t
		}
	}
	s.ExecutionStatus = st
}

// Validate checks the artifact invariants: a supported version and entries
// that tile the program day contiguously without overlaps. Entries merged
// in from the previous day may start before midnight.
func (s *Schedule) Validate(loc *time.Location) error {
	if s.Version != Version {
		return fmt.Errorf("unsupported schedule version %q (want %s)", s.Version, Version)
	}
	day, err := s.Date(loc)
	if err != nil {
		return err
	}
	if len(s.Entries) == 0 {
		return errors.New("schedule has no entries")
	}
	dayEnd := day.AddDate(0, 0, 1)
	for i, e := range s.Entries {
		if !e.End.After(e.Start) {
			return fmt.Errorf("entry %d has non-positive duration", i)
		}
		if !e.Mode.Valid() {
			return fmt.Errorf("entry %d has invalid mode", i)
		}
	}
	// Entries carried over from yesterday only need to be ordered; the
	// program day itself must be tiled without gaps.
	first := 0
	for first < len(s.Entries) && s.Entries[first].Start.Before(day) {
		if first > 0 && s.Entries[first].Start.Before(s.Entries[first-1].End) {
			return fmt.Errorf("overlap between entries %d and %d", first-1, first)
		}
		first++
	}
	rest := s.Entries[first:]
	if len(rest) == 0 {
		return fmt.Errorf("no entries cover program day %s", s.ProgramDate)
	}
	if !rest[0].Start.Equal(day) {
		return fmt.Errorf("day coverage starts at %v, want %v", rest[0].Start, day)
	}
	for i := 1; i < len(rest); i++ {
		if !rest[i].Start.Equal(rest[i-1].End) {
			return fmt.Errorf("gap or overlap at %v", rest[i].Start)
		}
	}
	if last := rest[len(rest)-1].End; !last.Equal(dayEnd) {
		return fmt.Errorf("last entry ends at %v, want %v", last, dayEnd)
	}
	return nil
}
