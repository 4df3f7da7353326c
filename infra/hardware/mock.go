package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

// Mock records every command instead of touching hardware. It backs
// --dry-run, simulation mode and most tests.
type Mock struct {
	mu sync.Mutex
	// FailCommands makes every call return an error when set.
	FailCommands bool

	CommandsExecuted []model.Mode
	AuxiliaryOn      bool
	AuxHistory       []bool
	current          model.Mode
	hasMode          bool
}

// NewMock returns an empty mock.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) SetPrimaryMode(_ context.Context, mode model.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommands {
		return fmt.Errorf("mock failure for %s", mode)
	}
	m.CommandsExecuted = append(m.CommandsExecuted, mode)
	m.current = mode
	m.hasMode = true
	return nil
}

func (m *Mock) SetAuxiliaryPump(_ context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommands {
		return fmt.Errorf("mock failure for auxiliary pump")
	}
	m.AuxiliaryOn = on
	m.AuxHistory = append(m.AuxHistory, on)
	return nil
}

func (m *Mock) Status(context.Context) (*pump.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommands {
		return nil, fmt.Errorf("mock failure for status")
	}
	st := &pump.Status{AuxiliaryOn: m.AuxiliaryOn}
	if m.hasMode {
		st.Mode = m.current.String()
	}
	return st, nil
}

// Commands returns a copy of the executed command list.
func (m *Mock) Commands() []model.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Mode, len(m.CommandsExecuted))
	copy(out, m.CommandsExecuted)
	return out
}
