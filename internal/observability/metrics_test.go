package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestModelCollectorRecordsScriptCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewModelCollector(reg)
	if err != nil {
		t.Fatalf("NewModelCollector: %v", err)
	}

	collector.ObserveScriptCall("rotation", "ok")
	collector.ObserveScriptCall("rotation", "ok")
	collector.ObserveScriptCall("rotation", "error")
	collector.ObserveCacheHit("trajectory")

	if got := testutil.ToFloat64(collector.ScriptCalls.WithLabelValues("rotation", "ok")); got != 2 {
		t.Fatalf("celestial_script_calls_total{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.ScriptCalls.WithLabelValues("rotation", "error")); got != 1 {
		t.Fatalf("celestial_script_calls_total{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CacheHits.WithLabelValues("trajectory")); got != 1 {
		t.Fatalf("celestial_model_cache_hits_total = %v, want 1", got)
	}
}

func TestModelCollectorRecordsFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewModelCollector(reg)
	if err != nil {
		t.Fatalf("NewModelCollector: %v", err)
	}

	collector.ObserveFrame(3*time.Millisecond, 4)
	collector.ObserveFrame(time.Millisecond, 4)

	if count := histogramSampleCount(t, reg, "celestial_frame_duration_seconds", nil); count != 2 {
		t.Fatalf("celestial_frame_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestModelCollectorToleratesReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewModelCollector(reg)
	if err != nil {
		t.Fatalf("NewModelCollector: %v", err)
	}
	second, err := NewModelCollector(reg)
	if err != nil {
		t.Fatalf("second NewModelCollector: %v", err)
	}

	second.ObserveConstruction("rotation", "scripted", "ok")
	if got := testutil.ToFloat64(first.Constructions.WithLabelValues("rotation", "scripted", "ok")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestNilModelCollectorIsSafe(t *testing.T) {
	var c *ModelCollector
	c.ObserveScriptCall("rotation", "ok")
	c.ObserveCacheHit("rotation")
	c.ObserveConstruction("rotation", "fixed", "ok")
	c.ObserveFrame(time.Millisecond, 1)
	c.SetBodies(1)
	c.SetScriptObjects(1)
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewModelCollector(reg)
	if err != nil {
		t.Fatalf("NewModelCollector: %v", err)
	}
	collector.SetBodies(7)
	collector.SetScriptObjects(3)
	collector.ObserveScriptCall("rotation", "ok")
	collector.ObserveCacheHit("rotation")
	collector.ObserveConstruction("trajectory", "sgp4", "error")
	collector.ObserveFrame(time.Millisecond, 7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"celestial_script_calls_total",
		"celestial_model_cache_hits_total",
		"celestial_model_constructions_total",
		"celestial_frame_duration_seconds",
		"celestial_script_objects 3",
		"celestial_bodies 7",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
