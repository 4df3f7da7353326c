package plan

import (
	"context"

	"github.com/redhouse-home/heatctl/core/sched"
)

// Recorder receives planned slots and executed commands for the analytics
// backend. Recording failures must never abort planning or execution, so
// implementations report errors and callers log them.
type Recorder interface {
	RecordPlan(ctx context.Context, s *sched.Schedule) error
	RecordExecution(ctx context.Context, s *sched.Schedule, e sched.Entry) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordPlan(context.Context, *sched.Schedule) error                   { return nil }
func (NopRecorder) RecordExecution(context.Context, *sched.Schedule, sched.Entry) error { return nil }
