package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

// ShellyConfig points at the relay channel driving the AC circulation pump.
type ShellyConfig struct {
	RelayURL       string `json:"relay_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Shelly switches the circulation pump through a Shelly relay's HTTP API.
// It has no access to the primary pump modes.
type Shelly struct {
	relayURL string
	client   *http.Client
	log      logger.Logger
}

// NewShelly returns a relay client for the configured URL
// (http://<host>/relay/<channel>).
func NewShelly(cfg ShellyConfig, log logger.Logger) *Shelly {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Shelly{
		relayURL: cfg.RelayURL,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// SetPrimaryMode is not available on the relay; the primary modes go over
// i2c or MQTT.
func (s *Shelly) SetPrimaryMode(_ context.Context, m model.Mode) error {
	return fmt.Errorf("shelly relay cannot set pump mode %s", m)
}

func (s *Shelly) SetAuxiliaryPump(ctx context.Context, on bool) error {
	action := "off"
	if on {
		action = "on"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.relayURL+"?turn="+action, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("switch circulation pump %s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("switch circulation pump %s: HTTP %d", action, resp.StatusCode)
	}
	s.log.Infof("circulation pump turned %s", action)
	return nil
}

// Status reads the relay state back.
func (s *Shelly) Status(ctx context.Context) (*pump.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.relayURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay status: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode relay status: %w", err)
	}
	st := &pump.Status{Raw: raw}
	if on, ok := raw["ison"].(bool); ok {
		st.AuxiliaryOn = on
	}
	return st, nil
}
