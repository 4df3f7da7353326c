package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/plan"
)

// PlannerDef overrides the default optimizer tunables for one scenario.
// Zero values keep the defaults.
type PlannerDef struct {
	SolarWeight      float64 `yaml:"solar_weight"`
	BlockThresholdCt float64 `yaml:"block_threshold_ct"`
	BlockMaxHours    int     `yaml:"block_max_hours"`
	GapMergeSlots    int     `yaml:"gap_merge_slots"`
	BaseLoadKW       float64 `yaml:"base_load_kw"`
	HeatingLoadKW    float64 `yaml:"heating_load_kw"`
}

// ToPlan converts the overrides into a planner config.
func (p PlannerDef) ToPlan() plan.Config {
	cfg := plan.Config{
		SolarWeight:       1.0,
		BlockThresholdCt:  15.0,
		BlockMaxHours:     4,
		GapMergeSlots:     1,
		BaseLoadKW:        1.0,
		HeatingLoadKW:     3.0,
		ResolutionMinutes: 60,
	}
	if p.SolarWeight != 0 {
		cfg.SolarWeight = p.SolarWeight
	}
	if p.BlockThresholdCt != 0 {
		cfg.BlockThresholdCt = p.BlockThresholdCt
	}
	if p.BlockMaxHours != 0 {
		cfg.BlockMaxHours = p.BlockMaxHours
	}
	if p.GapMergeSlots != 0 {
		cfg.GapMergeSlots = p.GapMergeSlots
	}
	if p.BaseLoadKW != 0 {
		cfg.BaseLoadKW = p.BaseLoadKW
	}
	if p.HeatingLoadKW != 0 {
		cfg.HeatingLoadKW = p.HeatingLoadKW
	}
	return cfg
}

// Expected is the outcome a scenario must produce.
type Expected struct {
	HeatingHours float64 `yaml:"heating_hours"`
	HeatingSlots []int   `yaml:"heating_slots"`
	BlockedSlots []int   `yaml:"blocked_slots,omitempty"`
	Entries      int     `yaml:"entries"`
}

// Scenario is one end-to-end planning case: forecast series in, slot
// decisions out.
type Scenario struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description,omitempty"`
	Date        string                `yaml:"date"`
	Timezone    string                `yaml:"timezone,omitempty"`
	Forecast    forecast.StaticSource `yaml:"forecast"`
	Planner     PlannerDef            `yaml:"planner,omitempty"`
	Expected    Expected              `yaml:"expected"`
}

// Load reads a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if sc.Date == "" {
		return nil, fmt.Errorf("scenario %s has no date", sc.Name)
	}
	return &sc, nil
}
