package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/redhouse-home/heatctl/core/curve"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/infra/forecast"
	"github.com/redhouse-home/heatctl/infra/hardware"
	"github.com/redhouse-home/heatctl/infra/record"
)

// Config is the full daemon configuration. Every section carries its own
// defaults and validation.
type Config struct {
	Curve    CurveConfig     `json:"curve"`
	Planner  PlannerConfig   `json:"planner"`
	Pump     PumpConfig      `json:"pump"`
	Hardware hardware.Config `json:"hardware"`
	Influx   InfluxConfig    `json:"influx"`
	Store    StoreConfig     `json:"store"`
	Logging  LoggingConfig   `json:"logging"`
	Metrics  MetricsConfig   `json:"metrics"`
	Location LocationConfig  `json:"location"`
	Executor ExecutorConfig  `json:"executor"`
}

// Load reads the config file (YAML or JSON), applies HEATCTL_ environment
// overrides (HEATCTL_PUMP__CYCLE_SECONDS=45 sets pump.cycle_seconds) and
// validates the result. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("HEATCTL_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "heatctl_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Curve.SetDefaults()
	cfg.Planner.SetDefaults()
	cfg.Pump.SetDefaults()
	cfg.Influx.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Location.SetDefaults()
	cfg.Executor.SetDefaults()
	for _, v := range []interface{ Validate() error }{
		cfg.Curve, cfg.Planner, cfg.Pump, cfg.Logging, cfg.Location, cfg.Executor,
	} {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// CurveConfig parameterises the heating curve.
type CurveConfig struct {
	// Anchors map outdoor temperature to daily heating hours.
	Anchors  []curve.Anchor `json:"anchors"`
	MinHours float64        `json:"min_hours"`
	Step     float64        `json:"step"`
}

func (c *CurveConfig) SetDefaults() {
	if len(c.Anchors) == 0 {
		c.Anchors = curve.DefaultAnchors()
	}
	if c.MinHours == 0 {
		c.MinHours = 0.25
	}
	if c.Step == 0 {
		c.Step = 0.25
	}
}

func (c CurveConfig) Validate() error {
	_, err := c.Build()
	return err
}

// Build constructs the curve from this section.
func (c CurveConfig) Build() (*curve.Curve, error) {
	return curve.New(c.Anchors, c.MinHours, c.Step)
}

// PlannerConfig holds the optimizer tunables.
type PlannerConfig struct {
	SolarWeight       float64 `json:"solar_weight"`
	BlockThresholdCt  float64 `json:"block_threshold_ct_kwh"`
	BlockMaxHours     int     `json:"block_max_continuous_hours"`
	GapMergeSlots     int     `json:"gap_merge_slots"`
	BaseLoadKW        float64 `json:"base_load_kw"`
	HeatingLoadKW     float64 `json:"heating_load_kw"`
	ResolutionMinutes int     `json:"resolution_minutes"`
}

func (c *PlannerConfig) SetDefaults() {
	if c.SolarWeight == 0 {
		c.SolarWeight = 1.0
	}
	if c.BlockThresholdCt == 0 {
		c.BlockThresholdCt = 15.0
	}
	if c.BlockMaxHours == 0 {
		c.BlockMaxHours = 4
	}
	if c.GapMergeSlots == 0 {
		c.GapMergeSlots = 1
	}
	if c.BaseLoadKW == 0 {
		c.BaseLoadKW = 1.0
	}
	if c.HeatingLoadKW == 0 {
		c.HeatingLoadKW = 3.0
	}
	if c.ResolutionMinutes == 0 {
		c.ResolutionMinutes = 60
	}
}

func (c PlannerConfig) Validate() error {
	if c.BaseLoadKW < 0 || c.HeatingLoadKW <= 0 {
		return fmt.Errorf("planner loads must be positive")
	}
	if c.ResolutionMinutes <= 0 || 60%c.ResolutionMinutes != 0 {
		return fmt.Errorf("resolution_minutes must divide an hour, got %d", c.ResolutionMinutes)
	}
	if c.BlockMaxHours < 0 {
		return fmt.Errorf("block_max_continuous_hours must not be negative")
	}
	return nil
}

// PlanConfig converts this section for the generator.
func (c PlannerConfig) PlanConfig() plan.Config {
	return plan.Config{
		SolarWeight:       c.SolarWeight,
		BlockThresholdCt:  c.BlockThresholdCt,
		BlockMaxHours:     c.BlockMaxHours,
		GapMergeSlots:     c.GapMergeSlots,
		BaseLoadKW:        c.BaseLoadKW,
		HeatingLoadKW:     c.HeatingLoadKW,
		ResolutionMinutes: c.ResolutionMinutes,
	}
}

// PumpConfig holds the controller safety parameters.
type PumpConfig struct {
	CycleSeconds           int    `json:"cycle_seconds"`
	ReliefThresholdSeconds int    `json:"relief_threshold_seconds"`
	MaxDelaySeconds        int    `json:"max_execution_delay_seconds"`
	StatePath              string `json:"state_path"`
}

func (c *PumpConfig) SetDefaults() {
	if c.CycleSeconds == 0 {
		c.CycleSeconds = 30
	}
	if c.ReliefThresholdSeconds == 0 {
		c.ReliefThresholdSeconds = 6300
	}
	if c.MaxDelaySeconds == 0 {
		c.MaxDelaySeconds = 1800
	}
	if c.StatePath == "" {
		c.StatePath = "/var/lib/heatctl/pump_state.json"
	}
}

func (c PumpConfig) Validate() error {
	if c.CycleSeconds <= 0 || c.ReliefThresholdSeconds <= 0 {
		return fmt.Errorf("pump cycle and relief threshold must be positive")
	}
	// The hardware falls back to a forced cycle at 120 min; staying under
	// it is the point of the software relief.
	if c.ReliefThresholdSeconds >= 7200 {
		return fmt.Errorf("relief_threshold_seconds %d must stay below the 7200 s hardware timer", c.ReliefThresholdSeconds)
	}
	return nil
}

// ControllerConfig converts this section for the pump controller.
func (c PumpConfig) ControllerConfig() pump.Config {
	return pump.Config{
		CycleDuration:     time.Duration(c.CycleSeconds) * time.Second,
		ReliefThreshold:   time.Duration(c.ReliefThresholdSeconds) * time.Second,
		MaxExecutionDelay: time.Duration(c.MaxDelaySeconds) * time.Second,
	}
}

// InfluxConfig carries the shared InfluxDB connection plus the bucket
// layout for forecasts and the load-control analytics.
type InfluxConfig struct {
	Enabled           bool   `json:"enabled"`
	URL               string `json:"url"`
	Token             string `json:"token"`
	Org               string `json:"org"`
	BucketSpot        string `json:"bucket_spotprice"`
	BucketEmeters     string `json:"bucket_emeters"`
	BucketWeather     string `json:"bucket_weather"`
	BucketLoadControl string `json:"bucket_load_control"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
}

func (c *InfluxConfig) SetDefaults() {
	if c.BucketSpot == "" {
		c.BucketSpot = "spotprice"
	}
	if c.BucketEmeters == "" {
		c.BucketEmeters = "emeters"
	}
	if c.BucketWeather == "" {
		c.BucketWeather = "weather"
	}
	if c.BucketLoadControl == "" {
		c.BucketLoadControl = "load_control"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// ForecastConfig converts this section for the forecast source.
func (c InfluxConfig) ForecastConfig() forecast.Config {
	return forecast.Config{
		URL:            c.URL,
		Token:          c.Token,
		Org:            c.Org,
		BucketSpot:     c.BucketSpot,
		BucketEmeters:  c.BucketEmeters,
		BucketWeather:  c.BucketWeather,
		TimeoutSeconds: c.TimeoutSeconds,
	}
}

// RecorderConfig converts this section for the load-control recorder.
func (c InfluxConfig) RecorderConfig() record.Config {
	return record.Config{
		URL:            c.URL,
		Token:          c.Token,
		Org:            c.Org,
		Bucket:         c.BucketLoadControl,
		TimeoutSeconds: c.TimeoutSeconds,
	}
}

// StoreConfig locates the schedule artifacts on disk.
type StoreConfig struct {
	BaseDir string `json:"base_dir"`
}

func (c *StoreConfig) SetDefaults() {
	if c.BaseDir == "" {
		c.BaseDir = "/var/lib/heatctl/schedules"
	}
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `json:"level"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", c.Level)
}

// MetricsConfig controls the Prometheus endpoint of the daemon.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 9184
	}
}

// LocationConfig pins the planning timezone. Day boundaries, DST day
// lengths and schedule paths all derive from it.
type LocationConfig struct {
	Timezone string `json:"timezone"`
}

func (c *LocationConfig) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Helsinki"
	}
}

func (c LocationConfig) Validate() error {
	_, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("bad timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Load returns the configured location.
func (c LocationConfig) Load() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ExecutorConfig holds the execution loop parameters.
type ExecutorConfig struct {
	TickSeconds        int `json:"tick_seconds"`
	MergeWindowMinutes int `json:"merge_window_minutes"`
}

func (c *ExecutorConfig) SetDefaults() {
	if c.TickSeconds == 0 {
		c.TickSeconds = 60
	}
	if c.MergeWindowMinutes == 0 {
		c.MergeWindowMinutes = 15
	}
}

func (c ExecutorConfig) Validate() error {
	if c.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive")
	}
	return nil
}
