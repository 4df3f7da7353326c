package pump

import (
	"github.com/redhouse-home/heatctl/core/model"
)

// State is the controller's persisted timing record. It survives process
// restarts so accumulated run time and the cycling bookkeeping carry across
// the short-lived executor invocations.
type State struct {
	// AccumulatedRunSeconds is continuous ON time since the last cycle.
	AccumulatedRunSeconds int64 `json:"accumulated_run_seconds"`
	// LastCommand is the wire name of the last applied mode, empty before
	// the first command.
	LastCommand string `json:"last_command,omitempty"`
	// LastCommandTime is the epoch second of the last applied command.
	LastCommandTime int64 `json:"last_command_time,omitempty"`
	// LastCycleTime is the epoch second of the last blocked pulse.
	LastCycleTime int64 `json:"last_cycle_time,omitempty"`
}

// LastMode parses the last command, reporting false when no command has
// been issued yet.
func (s State) LastMode() (model.Mode, bool) {
	if s.LastCommand == "" {
		return 0, false
	}
	m, err := model.ParseMode(s.LastCommand)
	if err != nil {
		return 0, false
	}
	return m, true
}

// StateStore persists the controller state. Load returns a zero State when
// nothing has been saved yet; an unreadable file is the implementation's
// problem to report, the controller falls back to defaults either way.
type StateStore interface {
	Load() (State, error)
	Save(s State) error
}
