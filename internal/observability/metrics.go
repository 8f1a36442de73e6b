package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	EventsReceived   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	EventsQueued     prometheus.Counter
	QueueDepth       prometheus.Gauge
	QueueEvictions   prometheus.Counter
	Dispatched       prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	SynthesisLatency prometheus.Histogram
	ConnectedClients prometheus.Gauge
	WSMessages       *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Normalized events offered to the processor, by platform and kind.",
		}, []string{"platform", "kind"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Events dropped before dispatch, by pipeline stage.",
		}, []string{"reason"}),
		EventsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_queued_total",
			Help:      "Events that produced a queued alert message.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages currently waiting in the alert queue.",
		}),
		QueueEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evictions_total",
			Help:      "Queued messages displaced by higher-priority arrivals.",
		}),
		Dispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Alert messages sent to overlay clients.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_cache_hits_total",
			Help:      "Synthesize calls answered from the artifact cache.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_cache_misses_total",
			Help:      "Synthesize calls that reached the TTS backend.",
		}),
		SynthesisLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_latency_ms",
			Help:      "TTS backend synthesis latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_clients",
			Help:      "Overlay WebSocket clients currently connected.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Platform API errors by provider and code.",
		}, []string{"provider", "code"}),
	}
}

func (m *Metrics) ObserveSynthesisLatency(d time.Duration) {
	m.SynthesisLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
