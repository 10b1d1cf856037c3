package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Seek kinds used as the "kind" label of playback_seeks_total.
const (
	SeekVideo  = "video"
	SeekNative = "native"
	SeekAudio  = "audio"
	SeekNested = "nested"
	SeekLoop   = "loop"
)

// Proxy lookup results used as the "result" label of playback_proxy_lookups_total.
const (
	ProxyHit     = "hit"
	ProxyNearest = "nearest"
	ProxyMiss    = "miss"
)

// Metrics holds Prometheus counters and gauges for the playback core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	ticksTotal        prometheus.Counter
	reconcilePasses   prometheus.Counter
	reconcileSkipped  prometheus.Counter
	layerReplacements prometheus.Counter
	seeksTotal        *prometheus.CounterVec
	seeksDropped      prometheus.Counter
	proxyLookups      *prometheus.CounterVec
	proxyFetchErrors  prometheus.Counter
	audioResyncs      prometheus.Counter
	audioErrors       prometheus.Counter
	positionSeconds   prometheus.Gauge
	playing           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playback core.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_ticks_total",
			Help: "Playhead clock ticks executed while playing",
		}),
		reconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_reconcile_passes_total",
			Help: "Full layer reconciliation passes",
		}),
		reconcileSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_reconcile_skipped_total",
			Help: "Reconciliation passes skipped by the playing throttle or a RAM preview hit",
		}),
		layerReplacements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_layer_replacements_total",
			Help: "Layers replaced in the published list because their resolved state changed",
		}),
		seeksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_seeks_total",
			Help: "Seeks issued on media resources",
		}, []string{"kind"}),
		seeksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_seeks_dropped_total",
			Help: "Native decoder seeks dropped because one was already pending",
		}),
		proxyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_proxy_lookups_total",
			Help: "Proxy frame lookups by result",
		}, []string{"result"}),
		proxyFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_proxy_fetch_errors_total",
			Help: "Proxy frame fetches that failed to decode",
		}),
		audioResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_audio_resyncs_total",
			Help: "Audio resources re-seeked because drift exceeded tolerance",
		}),
		audioErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_audio_errors_total",
			Help: "Rejected play() calls on media resources",
		}),
		positionSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_position_seconds",
			Help: "Last published playhead position",
		}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_playing",
			Help: "1 while the playhead clock is running",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.ticksTotal,
		m.reconcilePasses,
		m.reconcileSkipped,
		m.layerReplacements,
		m.seeksTotal,
		m.seeksDropped,
		m.proxyLookups,
		m.proxyFetchErrors,
		m.audioResyncs,
		m.audioErrors,
		m.positionSeconds,
		m.playing,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

func (m *Metrics) IncTicks() {
	if m != nil {
		m.ticksTotal.Inc()
	}
}

func (m *Metrics) IncReconcilePasses() {
	if m != nil {
		m.reconcilePasses.Inc()
	}
}

func (m *Metrics) IncReconcileSkipped() {
	if m != nil {
		m.reconcileSkipped.Inc()
	}
}

func (m *Metrics) AddLayerReplacements(n int) {
	if m != nil && n > 0 {
		m.layerReplacements.Add(float64(n))
	}
}

// IncSeeks counts a seek of the given kind (SeekVideo, SeekNative, ...).
func (m *Metrics) IncSeeks(kind string) {
	if m != nil {
		m.seeksTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncSeeksDropped() {
	if m != nil {
		m.seeksDropped.Inc()
	}
}

// IncProxyLookup counts a proxy lookup with result ProxyHit, ProxyNearest or ProxyMiss.
func (m *Metrics) IncProxyLookup(result string) {
	if m != nil {
		m.proxyLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncProxyFetchErrors() {
	if m != nil {
		m.proxyFetchErrors.Inc()
	}
}

func (m *Metrics) IncAudioResyncs() {
	if m != nil {
		m.audioResyncs.Inc()
	}
}

func (m *Metrics) IncAudioErrors() {
	if m != nil {
		m.audioErrors.Inc()
	}
}

// SetPosition sets the published playhead gauge.
func (m *Metrics) SetPosition(seconds float64) {
	if m != nil {
		m.positionSeconds.Set(seconds)
	}
}

// SetPlaying sets the playing gauge.
func (m *Metrics) SetPlaying(playing bool) {
	if m == nil {
		return
	}
	if playing {
		m.playing.Set(1)
	} else {
		m.playing.Set(0)
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
