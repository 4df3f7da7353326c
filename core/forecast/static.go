package forecast

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StaticSource serves fixed series loaded from a YAML fixture. It backs the
// planner scenario tests and the simulation mode of the generate command.
type StaticSource struct {
	PriceTotal []float64 `yaml:"price_total_ct"`
	PriceSell  []float64 `yaml:"price_sell_ct"`
	SolarKWh   []float64 `yaml:"solar_kwh"`
	TempC      []float64 `yaml:"temp_c"`
}

// LoadStatic reads a StaticSource from a YAML file.
func LoadStatic(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forecast fixture: %w", err)
	}
	var s StaticSource
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse forecast fixture: %w", err)
	}
	return &s, nil
}

func (s *StaticSource) Prices(_ context.Context, _ time.Time) (Prices, error) {
	if len(s.PriceTotal) == 0 {
		return Prices{}, fmt.Errorf("fixture has no price series")
	}
	sell := s.PriceSell
	if len(sell) == 0 {
		sell = make([]float64, len(s.PriceTotal))
	}
	return Prices{TotalCt: s.PriceTotal, SellCt: sell}, nil
}

func (s *StaticSource) Solar(_ context.Context, _ time.Time) ([]float64, error) {
	if len(s.SolarKWh) == 0 {
		return make([]float64, len(s.PriceTotal)), nil
	}
	return s.SolarKWh, nil
}

func (s *StaticSource) OutdoorTemp(_ context.Context, _ time.Time) ([]float64, error) {
	if len(s.TempC) == 0 {
		return nil, fmt.Errorf("fixture has no temperature series")
	}
	return s.TempC, nil
}
