package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/pump"
)

// StateStore persists the pump controller state as a single JSON file.
type StateStore struct {
	path string
	log  logger.Logger
}

// NewStateStore returns a store writing to path.
func NewStateStore(path string, log logger.Logger) *StateStore {
	return &StateStore{path: path, log: log}
}

// Load reads the state file. A missing or corrupt file yields zero-value
// state with a warning, never an error: the controller must always be able
// to start.
func (st *StateStore) Load() (pump.State, error) {
	raw, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return pump.State{}, nil
	}
	if err != nil {
		st.log.Warnf("pump state unreadable, using defaults: %v", err)
		return pump.State{}, nil
	}
	var s pump.State
	if err := json.Unmarshal(raw, &s); err != nil {
		st.log.Warnf("pump state corrupt, using defaults: %v", err)
		return pump.State{}, nil
	}
	return s, nil
}

// Save writes the state atomically.
func (st *StateStore) Save(s pump.State) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pump state: %w", err)
	}
	return writeAtomic(st.path, raw)
}
