package hardware

import (
	"context"

	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

// Combined splits the interface across two backends: the primary pump
// modes on one (typically i2c) and the circulation pump relay on another
// (typically shelly). Status comes from the auxiliary side, which is the
// only one that can read back.
type Combined struct {
	primary pump.HardwareInterface
	aux     pump.HardwareInterface
}

// NewCombined wires the two halves together.
func NewCombined(primary, aux pump.HardwareInterface) *Combined {
	return &Combined{primary: primary, aux: aux}
}

func (c *Combined) SetPrimaryMode(ctx context.Context, m model.Mode) error {
	return c.primary.SetPrimaryMode(ctx, m)
}

func (c *Combined) SetAuxiliaryPump(ctx context.Context, on bool) error {
	return c.aux.SetAuxiliaryPump(ctx, on)
}

func (c *Combined) Status(ctx context.Context) (*pump.Status, error) {
	return c.aux.Status(ctx)
}
