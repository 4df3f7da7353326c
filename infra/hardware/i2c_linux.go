//go:build linux

package hardware

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

const (
	i2cSlaveIoctl = 0x0703 // I2C_SLAVE from linux/i2c-dev.h

	regPrimary = 0x01
	regAux     = 0x02
)

// register pair per mode, matching the pump control board protocol.
var modeRegisters = map[model.Mode][2]byte{
	model.ModeRun:      {0x00, 0x00},
	model.ModeLowPower: {0xFF, 0x00},
	model.ModeBlocked:  {0xFF, 0xFF},
}

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

// I2C drives the heat pump control board over /dev/i2c-N. The device is
// opened per write so a transient bus error never wedges a descriptor.
type I2C struct {
	mu  sync.Mutex
	cfg I2CConfig
	log logger.Logger

	lastMode model.Mode
	hasLast  bool
}

// NewI2C returns a driver for the configured bus and address.
func NewI2C(cfg I2CConfig, log logger.Logger) *I2C {
	cfg.SetDefaults()
	return &I2C{cfg: cfg, log: log}
}

func (d *I2C) SetPrimaryMode(ctx context.Context, m model.Mode) error {
	regs, ok := modeRegisters[m]
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrUnknownMode, m)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.writeRegisters(regs[0], regs[1]); err != nil {
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	d.lastMode = m
	d.hasLast = true
	d.log.Debugf("i2c wrote %s (0x%02X, 0x%02X)", m, regs[0], regs[1])
	return nil
}

// SetAuxiliaryPump is not wired through the I2C board; the circulation
// pump runs on a separate relay.
func (d *I2C) SetAuxiliaryPump(context.Context, bool) error {
	return fmt.Errorf("auxiliary pump is not controlled over i2c")
}

func (d *I2C) Status(context.Context) (*pump.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasLast {
		return nil, nil
	}
	return &pump.Status{
		Mode: d.lastMode.String(),
		Raw:  map[string]any{"bus": d.cfg.Bus, "address": d.cfg.Address},
	}, nil
}

func (d *I2C) writeRegisters(reg1, reg2 byte) error {
	dev := fmt.Sprintf("/dev/i2c-%d", d.cfg.Bus)
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", dev, err)
	}
	defer f.Close()

	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlaveIoctl, int(d.cfg.Address)); err != nil {
		return fmt.Errorf("select device 0x%02X: %w", d.cfg.Address, err)
	}
	// SMBus write_byte_data: register address followed by the value.
	if _, err := f.Write([]byte{regPrimary, reg1}); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", regPrimary, err)
	}
	if _, err := f.Write([]byte{regAux, reg2}); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", regAux, err)
	}
	return nil
}
