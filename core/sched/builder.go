package sched

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redhouse-home/heatctl/core/model"
)

// SlotInput carries the planner's per-slot figures into the builder.
type SlotInput struct {
	Start       time.Time
	PriceCt     float64
	SolarKWh    float64
	HeatingPrio float64
}

// BuildInput is everything needed to assemble a full-day schedule.
type BuildInput struct {
	Date         time.Time // local midnight of the program day
	GeneratedAt  time.Time
	SlotDuration time.Duration
	Slots        []SlotInput
	// Heating and Blocked are slot-index sets. A slot in both is heated:
	// the heating selection always wins over blocking.
	Heating map[int]bool
	Blocked map[int]bool

	BaseLoadKW    float64
	HeatingLoadKW float64

	Params     InputParameters
	Results    PlanningResults
	Simulation *SimulationInfo
}

// Build assembles the versioned artifact. Every slot gets a command: Run for
// heating-selected slots, Blocked inside block windows, LowPower otherwise.
func Build(in BuildInput) (*Schedule, error) {
	if len(in.Slots) == 0 {
		return nil, fmt.Errorf("no slots for %s", in.Date.Format("2006-01-02"))
	}
	if in.SlotDuration <= 0 {
		return nil, fmt.Errorf("non-positive slot duration")
	}

	entries := make([]Entry, len(in.Slots))
	for i, sl := range in.Slots {
		mode := model.ModeLowPower
		power := in.BaseLoadKW
		switch {
		case in.Heating[i]:
			mode = model.ModeRun
			power = in.BaseLoadKW + in.HeatingLoadKW
		case in.Blocked[i]:
			mode = model.ModeBlocked
		}
		entries[i] = Entry{
			Start:       sl.Start,
			End:         sl.Start.Add(in.SlotDuration),
			Timestamp:   sl.Start.Unix(),
			Mode:        mode,
			PowerKW:     power,
			PriceCt:     sl.PriceCt,
			SolarKWh:    sl.SolarKWh,
			HeatingPrio: sl.HeatingPrio,
			Heating:     in.Heating[i],
		}
	}

	s := &Schedule{
		Version:          Version,
		ID:               uuid.NewString(),
		GeneratedAt:      in.GeneratedAt,
		GeneratorVersion: GeneratorVersion,
		ProgramDate:      in.Date.Format("2006-01-02"),
		InputParameters:  in.Params,
		PlanningResults:  in.Results,
		Entries:          entries,
		Simulation:       in.Simulation,
		ExecutionStatus: ExecutionStatus{
			PendingIntervals: len(entries),
		},
	}
	if err := s.Validate(in.Date.Location()); err != nil {
		return nil, fmt.Errorf("built schedule is inconsistent: %w", err)
	}
	return s, nil
}
