package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_nilIsNoop(t *testing.T) {
	var m *Metrics
	m.IncTicks()
	m.IncSeeks(SeekVideo)
	m.IncProxyLookup(ProxyHit)
	m.SetPlaying(true)
	m.AddLayerReplacements(3)
}

func TestMetrics_Handler_exposesCounters(t *testing.T) {
	m := New()
	m.IncSeeks(SeekNative)
	m.IncProxyLookup(ProxyNearest)
	m.SetPosition(4.5)

	rec := httptest.NewRecorder()
	m.Handler(func() { m.SetPlaying(true) }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`playback_seeks_total{kind="native"} 1`,
		`playback_proxy_lookups_total{result="nearest"} 1`,
		`playback_position_seconds 4.5`,
		`playback_playing 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRequestMiddleware_countsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/seek", nil))

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "playback_errors_total 1") {
		t.Errorf("expected one error counted:\n%s", rec.Body.String())
	}
}
