package metrics_test

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wasmvisor/wasmvisor/internal/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	workload := "metrics_test_workload"

	metrics.EmitBuildInfo()
	metrics.SetActiveTasks(3)
	metrics.IncProcessesCreated()
	metrics.IncThreadsStarted(workload)
	metrics.AddSignalsDelivered(workload, 2)
	metrics.ObserveBackoffPause(50 * time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "wasmvisor_active_tasks 3") {
		t.Fatalf("expected active task gauge in body:\n%s", body)
	}
	threadsLine := fmt.Sprintf("wasmvisor_threads_started_total{workload=%q} 1", workload)
	if !strings.Contains(body, threadsLine) {
		t.Fatalf("expected %q in body:\n%s", threadsLine, body)
	}
	signalsLine := fmt.Sprintf("wasmvisor_signals_delivered_total{workload=%q} 2", workload)
	if !strings.Contains(body, signalsLine) {
		t.Fatalf("expected %q in body:\n%s", signalsLine, body)
	}
}

func TestHelpersTolerateEmptyAndZeroValues(t *testing.T) {
	metrics.IncThreadsStarted("")
	metrics.AddSignalsDelivered("", 0)
	metrics.ObserveBackoffPause(0)
}
