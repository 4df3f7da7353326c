package forecast

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/redhouse-home/heatctl/core/forecast"
	"github.com/redhouse-home/heatctl/core/logger"
)

// solarScale converts the stored 5-minute average yield into kWh per hour.
const solarScale = 3.6

// Config holds the InfluxDB connection and bucket layout for the three
// forecast series.
type Config struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	Org            string `json:"org"`
	BucketSpot     string `json:"bucket_spotprice"`
	BucketEmeters  string `json:"bucket_emeters"`
	BucketWeather  string `json:"bucket_weather"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// InfluxSource fetches prices, solar prediction and outdoor temperature from
// InfluxDB with Flux queries, aggregated to hourly values.
type InfluxSource struct {
	client influxdb2.Client
	query  api.QueryAPI
	cfg    Config
	log    logger.Logger
}

// NewInfluxSource connects to the configured InfluxDB endpoint. The
// connection is lazy; a wrong URL only surfaces on the first query.
func NewInfluxSource(cfg Config, log logger.Logger) *InfluxSource {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: timeout}))
	return &InfluxSource{
		client: client,
		query:  client.QueryAPI(cfg.Org),
		cfg:    cfg,
		log:    log,
	}
}

// Close releases the underlying HTTP client.
func (s *InfluxSource) Close() { s.client.Close() }

// Prices returns the hourly buy and sell prices for the given local day.
func (s *InfluxSource) Prices(ctx context.Context, day time.Time) (forecast.Prices, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %d, stop: %d)
  |> filter(fn: (r) => r["_field"] == "price_total" or r["_field"] == "price_sell")
  |> aggregateWindow(every: 1h, fn: mean, createEmpty: false)
  |> yield(name: "mean")`,
		s.cfg.BucketSpot, day.Unix(), dayEnd(day).Unix())

	byField, err := s.fetch(ctx, flux, day)
	if err != nil {
		return forecast.Prices{}, fmt.Errorf("query spot prices: %w", err)
	}
	n := hoursIn(day)
	p := forecast.Prices{
		TotalCt: s.series(byField["price_total"], day, n, "price_total"),
		SellCt:  s.series(byField["price_sell"], day, n, "price_sell"),
	}
	if len(p.TotalCt) == 0 {
		return forecast.Prices{}, fmt.Errorf("no spot prices for %s", day.Format("2006-01-02"))
	}
	return p, nil
}

// Solar returns the predicted hourly solar production in kWh.
func (s *InfluxSource) Solar(ctx context.Context, day time.Time) ([]float64, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %d, stop: %d)
  |> filter(fn: (r) => r["_field"] == "solar_yield_avg_prediction")
  |> aggregateWindow(every: 1h, fn: mean, createEmpty: false)
  |> yield(name: "mean")`,
		s.cfg.BucketEmeters, day.Unix(), dayEnd(day).Unix())

	byField, err := s.fetch(ctx, flux, day)
	if err != nil {
		return nil, fmt.Errorf("query solar prediction: %w", err)
	}
	out := s.series(byField["solar_yield_avg_prediction"], day, hoursIn(day), "solar_yield_avg_prediction")
	for i := range out {
		out[i] *= solarScale
	}
	return out, nil
}

// OutdoorTemp returns the forecast hourly outdoor temperature in Celsius.
func (s *InfluxSource) OutdoorTemp(ctx context.Context, day time.Time) ([]float64, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %d, stop: %d)
  |> filter(fn: (r) => r["_measurement"] == "weather")
  |> filter(fn: (r) => r["_field"] == "Air temperature")
  |> aggregateWindow(every: 1h, fn: mean, createEmpty: false)
  |> yield(name: "mean")`,
		s.cfg.BucketWeather, day.Unix(), dayEnd(day).Unix())

	byField, err := s.fetch(ctx, flux, day)
	if err != nil {
		return nil, fmt.Errorf("query weather forecast: %w", err)
	}
	out := s.series(byField["Air temperature"], day, hoursIn(day), "Air temperature")
	if len(out) == 0 {
		return nil, fmt.Errorf("no temperature forecast for %s", day.Format("2006-01-02"))
	}
	return out, nil
}

// fetch runs the query and groups values by field name and hour index
// within the day. aggregateWindow stamps each window with its end time, so
// the hour index is taken from the window start.
func (s *InfluxSource) fetch(ctx context.Context, flux string, day time.Time) (map[string]map[int]float64, error) {
	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	byField := map[string]map[int]float64{}
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		windowStart := rec.Time().Add(-time.Hour).In(day.Location())
		idx := int(windowStart.Sub(day) / time.Hour)
		if idx < 0 || idx >= hoursIn(day) {
			continue
		}
		field := rec.Field()
		if byField[field] == nil {
			byField[field] = map[int]float64{}
		}
		byField[field][idx] = v
	}
	if res.Err() != nil {
		return nil, res.Err()
	}
	return byField, nil
}

// series flattens one field's hour map into a dense slice, carrying the
// previous value forward over gaps.
func (s *InfluxSource) series(byHour map[int]float64, day time.Time, n int, field string) []float64 {
	if len(byHour) == 0 {
		return nil
	}
	out := make([]float64, n)
	last := math.NaN()
	gaps := 0
	for i := 0; i < n; i++ {
		v, ok := byHour[i]
		if !ok {
			gaps++
			v = last
		}
		if math.IsNaN(v) {
			// Leading gap: backfill from the first known value.
			v = firstValue(byHour, n)
		}
		out[i] = v
		last = v
	}
	if gaps > 0 {
		s.log.Warnf("%s for %s has %d missing hours, carried forward", field, day.Format("2006-01-02"), gaps)
	}
	return out
}

func firstValue(byHour map[int]float64, n int) float64 {
	for i := 0; i < n; i++ {
		if v, ok := byHour[i]; ok {
			return v
		}
	}
	return 0
}

func dayEnd(day time.Time) time.Time { return day.AddDate(0, 0, 1) }

// hoursIn returns the local day length; 23 or 25 around DST transitions.
func hoursIn(day time.Time) int {
	return int(dayEnd(day).Sub(day) / time.Hour)
}
