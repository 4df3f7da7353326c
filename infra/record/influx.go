package record

import (
	"context"
	"fmt"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/plan"
	"github.com/redhouse-home/heatctl/core/sched"
)

const loadID = "geothermal_pump"

// Config holds the InfluxDB connection for the load-control analytics
// bucket.
type Config struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	Org            string `json:"org"`
	Bucket         string `json:"bucket_load_control"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// InfluxRecorder writes planned slots and executed commands as load_control
// measurement points for the dashboards.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	log    logger.Logger
}

// NewInfluxRecorder creates a recorder for the given endpoint.
func NewInfluxRecorder(cfg Config, log logger.Logger) *InfluxRecorder {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: timeout}))
	return &InfluxRecorder{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:    log,
	}
}

// NewInfluxRecorderWithFallback pings the InfluxDB instance first and
// returns a NopRecorder when the health check fails, so planning and
// execution keep working without the analytics backend.
func NewInfluxRecorderWithFallback(cfg Config, log logger.Logger) plan.Recorder {
	rec := NewInfluxRecorder(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := rec.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		rec.client.Close()
		return plan.NopRecorder{}
	}
	return rec
}

// Close releases the underlying client resources.
func (r *InfluxRecorder) Close() { r.client.Close() }

// RecordPlan writes one point per schedule entry plus a summary point,
// tagged data_type=plan.
func (r *InfluxRecorder) RecordPlan(ctx context.Context, s *sched.Schedule) error {
	for _, e := range s.Entries {
		p := r.entryPoint(s, e, "plan", e.Mode, e.Start)
		if err := r.write.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("write plan point: %w", err)
		}
	}
	summary := write.NewPointWithMeasurement("load_control_summary").
		AddTag("program_date", s.ProgramDate).
		AddTag("data_type", "plan").
		AddField("avg_temperature_c", s.InputParameters.AvgTemperatureC).
		AddField("total_heating_hours", s.PlanningResults.HeatingHours).
		AddField("total_heating_intervals", s.PlanningResults.SelectedSlots).
		AddField("total_evu_off_windows", s.PlanningResults.BlockWindows).
		AddField("estimated_heating_cost_ct", s.PlanningResults.HeatingCostCt).
		AddField("cheapest_price", s.PlanningResults.CheapestSlotCt).
		AddField("most_expensive_price", s.PlanningResults.PriciestSlotCt).
		SetTime(s.GeneratedAt)
	if err := r.write.WritePoint(ctx, summary); err != nil {
		return fmt.Errorf("write summary point: %w", err)
	}
	r.log.Debugf("recorded %d plan points for %s", len(s.Entries)+1, s.ProgramDate)
	return nil
}

// RecordExecution writes the actual outcome of one entry, tagged
// data_type=actual.
func (r *InfluxRecorder) RecordExecution(ctx context.Context, s *sched.Schedule, e sched.Entry) error {
	ts := e.Start
	if e.Execution != nil && e.Execution.ActualTime > 0 {
		ts = time.Unix(e.Execution.ActualTime, 0)
	}
	p := r.entryPoint(s, e, "actual", e.Mode, ts)
	if e.Execution != nil {
		p.AddField("scheduled_time", e.Execution.ScheduledTime).
			AddField("actual_time", e.Execution.ActualTime).
			AddField("delay_seconds", e.Execution.DelaySeconds).
			AddField("success", e.Execution.Success).
			AddField("skipped", e.Execution.Skipped)
	}
	if err := r.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write execution point: %w", err)
	}
	return nil
}

func (r *InfluxRecorder) entryPoint(s *sched.Schedule, e sched.Entry, dataType string, m model.Mode, ts time.Time) *write.Point {
	isOn := m == model.ModeRun
	power := 0.0
	if isOn {
		power = e.PowerKW
	}
	return write.NewPointWithMeasurement("load_control").
		AddTag("program_date", s.ProgramDate).
		AddTag("load_id", loadID).
		AddTag("data_type", dataType).
		AddField("command", m.String()).
		AddField("power_kw", power).
		AddField("is_on", isOn).
		AddField("is_evu_off", m == model.ModeBlocked).
		AddField("spot_price_c_kwh", e.PriceCt).
		AddField("solar_prediction_kwh", e.SolarKWh).
		AddField("heating_prio_ct", e.HeatingPrio).
		SetTime(ts)
}
