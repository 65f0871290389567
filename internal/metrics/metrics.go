package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dtn_gateway"

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	feedState        *prometheus.GaugeVec
	feedConnects     *prometheus.CounterVec
	feedDialFailures *prometheus.CounterVec
	feedReadErrors   *prometheus.CounterVec
	linesReceived    *prometheus.CounterVec
	linesDecoded     *prometheus.CounterVec
	linesFiltered    *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec

	sessions        prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionsEvicted *prometheus.CounterVec
	broadcasts      prometheus.Counter
	framesSent      prometheus.Counter
	broadcastBytes  prometheus.Counter
	upgradeFailures prometheus.Counter

	mirrorPublished prometheus.Counter
	mirrorErrors    prometheus.Counter

	journalWritten prometheus.Counter
	journalErrors  prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		feedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "state",
			Help:      "Current feed state (0=disconnected 1=connecting 2=connected 3=streaming 4=stopped)",
		}, []string{"feed"}),
		feedConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connects_total",
			Help:      "Total successful upstream connections",
		}, []string{"feed"}),
		feedDialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dial_failures_total",
			Help:      "Total failed upstream connection attempts",
		}, []string{"feed"}),
		feedReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "read_errors_total",
			Help:      "Total upstream read failures",
		}, []string{"feed"}),
		linesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "lines_received_total",
			Help:      "Total lines received from upstream",
		}, []string{"feed"}),
		linesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "lines_decoded_total",
			Help:      "Total lines decoded and broadcast",
		}, []string{"feed"}),
		linesFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "lines_filtered_total",
			Help:      "Total lines rejected by the feed allow-list",
		}, []string{"feed"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Total lines dropped because they could not be decoded",
		}, []string{"feed", "reason"}),

		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Number of currently connected subscribers",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_opened_total",
			Help:      "Total subscriber sessions accepted",
		}),
		sessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_evicted_total",
			Help:      "Total subscriber sessions removed",
		}, []string{"reason"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total messages broadcast",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_sent_total",
			Help:      "Total frames written to subscribers",
		}),
		broadcastBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_bytes_total",
			Help:      "Total payload bytes broadcast",
		}),
		upgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "upgrade_failures_total",
			Help:      "Total failed WebSocket upgrades",
		}),

		mirrorPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "published_total",
			Help:      "Total frames mirrored to NATS",
		}),
		mirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "publish_errors_total",
			Help:      "Total failed NATS publishes",
		}),

		journalWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "events_written_total",
			Help:      "Total feed events written to the journal",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Total failed journal batch writes",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.feedState,
		m.feedConnects,
		m.feedDialFailures,
		m.feedReadErrors,
		m.linesReceived,
		m.linesDecoded,
		m.linesFiltered,
		m.decodeErrors,
		m.sessions,
		m.sessionsOpened,
		m.sessionsEvicted,
		m.broadcasts,
		m.framesSent,
		m.broadcastBytes,
		m.upgradeFailures,
		m.mirrorPublished,
		m.mirrorErrors,
		m.journalWritten,
		m.journalErrors,
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
