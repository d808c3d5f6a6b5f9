package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gather returns the metric families of reg keyed by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

func labeled(mf *dto.MetricFamily, label, value string) *dto.Metric {
	if mf == nil {
		return nil
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m
			}
		}
	}
	return nil
}

func gaugeValue(t *testing.T, families map[string]*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := families[name]
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatalf("metric %s not found", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func TestMetrics_ExchangeLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordSubmit(2)
	m.RecordTransmit(1, 20*time.Millisecond)

	families := gather(t, reg)
	if got := gaugeValue(t, families, "ocrpipe_queue_depth"); got != 1 {
		t.Errorf("queue depth = %v, want 1", got)
	}
	if got := gaugeValue(t, families, "ocrpipe_in_flight"); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}

	m.RecordComplete(OutcomeOK, 0, 50*time.Millisecond)
	m.RecordComplete(OutcomeNoText, 0, 10*time.Millisecond)
	m.RecordComplete(OutcomeOK, 0, 10*time.Millisecond)

	families = gather(t, reg)
	total := families["ocrpipe_exchanges_total"]
	if c := labeled(total, "outcome", OutcomeOK); c == nil || c.GetCounter().GetValue() != 2 {
		t.Errorf("ok exchanges = %v, want 2", c)
	}
	if c := labeled(total, "outcome", OutcomeNoText); c == nil || c.GetCounter().GetValue() != 1 {
		t.Errorf("no_text exchanges = %v, want 1", c)
	}
	hist := labeled(families["ocrpipe_exchange_duration_seconds"], "outcome", OutcomeOK)
	if hist == nil || hist.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("ok duration samples = %v, want 2", hist)
	}
	if got := gaugeValue(t, families, "ocrpipe_in_flight"); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestMetrics_WorkerLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordWorkerStart()
	m.RecordWorkerReady()
	if got := gaugeValue(t, gather(t, reg), "ocrpipe_worker_ready"); got != 1 {
		t.Errorf("worker ready = %v, want 1", got)
	}

	m.RecordTransmit(3, 0)
	m.RecordWorkerExit(ExitSignal)

	families := gather(t, reg)
	if got := gaugeValue(t, families, "ocrpipe_worker_ready"); got != 0 {
		t.Errorf("worker ready after exit = %v, want 0", got)
	}
	if got := gaugeValue(t, families, "ocrpipe_queue_depth"); got != 0 {
		t.Errorf("queue depth after exit = %v, want 0", got)
	}
	if c := labeled(families["ocrpipe_worker_exits_total"], "reason", ExitSignal); c == nil || c.GetCounter().GetValue() != 1 {
		t.Errorf("signal exits = %v, want 1", c)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSubmit(1)
	m.RecordTransmit(1, time.Second)
	m.RecordComplete(OutcomeOK, 0, time.Second)
	m.RecordUnsolicited()
	m.RecordWorkerStart()
	m.RecordWorkerReady()
	m.RecordWorkerExit(ExitNormal)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two clients in one process must not collide.
	New(nil)
	New(nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordUnsolicited()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "ocrpipe_unsolicited_lines_total 1") {
		t.Errorf("body missing counter:\n%s", body)
	}
}
