package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObserverCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPromObserverWithRegistry(reg)
	if err != nil {
		t.Fatal(err)
	}

	obs.ExecutionObserved("ON", true, 3*time.Second)
	obs.ExecutionObserved("ON", true, time.Second)
	obs.ExecutionObserved("EVU", false, 0)
	obs.CycleObserved(true)
	obs.RunTimeObserved(4200)

	if got := testutil.ToFloat64(obs.executions.WithLabelValues("ON", "true")); got != 2 {
		t.Errorf("ON/true executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(obs.executions.WithLabelValues("EVU", "false")); got != 1 {
		t.Errorf("EVU/false executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.cycles.WithLabelValues("true")); got != 1 {
		t.Errorf("cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.runTime); got != 4200 {
		t.Errorf("run time gauge = %v, want 4200", got)
	}
}

func TestPromObserverDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromObserverWithRegistry(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPromObserverWithRegistry(reg); err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
}
