//go:build !linux

package hardware

import (
	"context"
	"fmt"
	"runtime"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

// I2CConfig locates the pump control board on the I2C bus.
type I2CConfig struct {
	Bus     int   `json:"bus"`
	Address uint8 `json:"address"`
}

// SetDefaults applies the board's factory wiring.
func (c *I2CConfig) SetDefaults() {
	if c.Bus == 0 {
		c.Bus = 1
	}
	if c.Address == 0 {
		c.Address = 0x10
	}
}

// I2C is unavailable off Linux; every call reports the platform.
type I2C struct{}

func NewI2C(I2CConfig, logger.Logger) *I2C { return &I2C{} }

func (d *I2C) SetPrimaryMode(context.Context, model.Mode) error {
	return fmt.Errorf("i2c pump control requires linux, running on %s", runtime.GOOS)
}

func (d *I2C) SetAuxiliaryPump(context.Context, bool) error {
	return fmt.Errorf("i2c pump control requires linux, running on %s", runtime.GOOS)
}

func (d *I2C) Status(context.Context) (*pump.Status, error) {
	return nil, fmt.Errorf("i2c pump control requires linux, running on %s", runtime.GOOS)
}
