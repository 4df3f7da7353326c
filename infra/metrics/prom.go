package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/redhouse-home/heatctl/core/executor"
)

// PromObserver records executor and pump activity as Prometheus metrics.
type PromObserver struct {
	executions *prometheus.CounterVec
	cycles     *prometheus.CounterVec
	delay      prometheus.Histogram
	runTime    prometheus.Gauge
}

// NewPromObserver registers the metrics on the default registerer.
func NewPromObserver() (*PromObserver, error) {
	return NewPromObserverWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromObserverWithRegistry registers the metrics on the provided
// registerer. A nil registerer defaults to the global one; collectors that
// are already registered are reused so repeated construction is safe.
func NewPromObserverWithRegistry(reg prometheus.Registerer) (*PromObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heatctl_executions_total",
		Help: "Pump commands executed, by command and outcome",
	}, []string{"command", "success"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heatctl_relief_cycles_total",
		Help: "Compressor relief cycles performed, by outcome",
	}, []string{"success"})
	delay := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "heatctl_execution_delay_seconds",
		Help:    "Delay between scheduled and actual command time",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	})
	runTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heatctl_accumulated_run_seconds",
		Help: "Continuous compressor run time since the last relief cycle",
	})

	if err := reg.Register(executions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			executions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(cycles); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cycles = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(delay); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			delay = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(runTime); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runTime = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromObserver{executions: executions, cycles: cycles, delay: delay, runTime: runTime}, nil
}

var _ executor.Observer = (*PromObserver)(nil)

// ExecutionObserved counts one executed command and its delay.
func (o *PromObserver) ExecutionObserved(command string, success bool, delay time.Duration) {
	o.executions.WithLabelValues(command, strconv.FormatBool(success)).Inc()
	o.delay.Observe(delay.Seconds())
}

// CycleObserved counts one relief cycle.
func (o *PromObserver) CycleObserved(success bool) {
	o.cycles.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RunTimeObserved updates the accumulated run-time gauge.
func (o *PromObserver) RunTimeObserved(seconds float64) {
	o.runTime.Set(seconds)
}
