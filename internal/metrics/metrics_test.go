package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newTestRegistry builds a Registry backed by a fresh isolated
// prometheus.Registry so tests do not pollute prometheus.DefaultRegisterer.
func newTestRegistry(t *testing.T) (*Registry, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestMetricsEndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newTestRegistry(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func TestRAGRequestsTotalIncremented(t *testing.T) {
	t.Parallel()
	m, reg := newTestRegistry(t)

	m.RAGRequestsTotal.WithLabelValues("ok").Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "energyassistant_rag_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == "ok" {
					if m.GetCounter().GetValue() != 1 {
						t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
					}
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("energyassistant_rag_requests_total{outcome=\"ok\"} not found in gathered metrics")
	}
}

func TestEvalQueueProcessedIsPlainCounter(t *testing.T) {
	t.Parallel()
	m, reg := newTestRegistry(t)

	m.EvalQueueProcessed.Add(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "energyassistant_evalqueue_processed_total" {
			v := mf.GetMetric()[0].GetCounter().GetValue()
			if v != 3 {
				t.Errorf("want processed_total=3, got %v", v)
			}
			return
		}
	}
	t.Error("energyassistant_evalqueue_processed_total not found in gathered metrics")
}
