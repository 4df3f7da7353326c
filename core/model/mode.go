package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode is a heat pump operating mode. The hardware knows three signals:
// ON forces heating, ALE leaves the pump in its automatic low-power mode
// and EVU blocks it entirely (the utility lock input).
type Mode int

const (
	ModeRun Mode = iota
	ModeLowPower
	ModeBlocked
)

// ErrUnknownMode is returned when parsing an unrecognised mode string.
var ErrUnknownMode = fmt.Errorf("unknown pump mode")

// String returns the wire name used by the hardware and the schedule
// artifact (ON/ALE/EVU).
func (m Mode) String() string {
	switch m {
	case ModeRun:
		return "ON"
	case ModeLowPower:
		return "ALE"
	case ModeBlocked:
		return "EVU"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeRun || m == ModeLowPower || m == ModeBlocked
}

// ParseMode accepts both the wire names and the human command names used on
// the CLI.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "run":
		return ModeRun, nil
	case "ale", "lowpower", "low-power", "auto":
		return ModeLowPower, nil
	case "evu", "blocked", "block":
		return ModeBlocked, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// MarshalJSON encodes the mode as its wire name.
func (m Mode) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a wire or human mode name.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
