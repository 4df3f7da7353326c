package hardware

import (
	"fmt"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/pump"
)

// Config selects and configures the hardware backend.
type Config struct {
	// Kind is one of i2c, shelly, mqtt, combined, mock.
	Kind   string       `json:"kind"`
	I2C    I2CConfig    `json:"i2c"`
	Shelly ShellyConfig `json:"shelly"`
	MQTT   MQTTConfig   `json:"mqtt"`
}

// New builds the hardware interface named by cfg.Kind.
func New(cfg Config, log logger.Logger) (pump.HardwareInterface, error) {
	switch cfg.Kind {
	case "i2c":
		return NewI2C(cfg.I2C, log), nil
	case "shelly":
		return NewShelly(cfg.Shelly, log), nil
	case "mqtt":
		return NewMQTTRelay(cfg.MQTT, log)
	case "combined":
		return NewCombined(NewI2C(cfg.I2C, log), NewShelly(cfg.Shelly, log)), nil
	case "mock", "":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown hardware kind %q", cfg.Kind)
	}
}
