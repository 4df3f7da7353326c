package pump

import (
	"context"

	"github.com/redhouse-home/heatctl/core/model"
)

// Status is a best-effort snapshot of the hardware. Implementations that
// cannot read back state return nil without error.
type Status struct {
	Mode        string         `json:"mode,omitempty"`
	AuxiliaryOn bool           `json:"auxiliary_on"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// HardwareInterface is the seam between the controller and the physical
// pump. The controller depends only on this contract; bus, relay and mock
// implementations live under infra/hardware and are swappable without
// touching the safety logic.
type HardwareInterface interface {
	// SetPrimaryMode applies a pump mode (ON/ALE/EVU).
	SetPrimaryMode(ctx context.Context, m model.Mode) error
	// SetAuxiliaryPump switches the AC circulation pump relay.
	SetAuxiliaryPump(ctx context.Context, on bool) error
	// Status reads the hardware state, or returns nil if unsupported.
	Status(ctx context.Context) (*Status, error)
}
