package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "psocial"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Currently open websocket connections.",
	})

	socketEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_total",
		Help:      "Socket events by name and direction.",
	}, []string{"event", "direction"})

	socketDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped because a send buffer was full.",
	})

	queueJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "jobs_total",
		Help:      "Queue jobs by name and outcome.",
	}, []string{"name", "outcome"})

	queueDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "job_duration_seconds",
		Help:      "Duration of a single job attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"name"})

	sseStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sse",
		Name:      "streams",
		Help:      "Currently registered SSE streams.",
	})

	sseFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sse",
		Name:      "frames_total",
		Help:      "SSE pushes by result (sent, offline, evicted).",
	}, []string{"result"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"method", "path", "status"})
)

func init() {
	Registry.MustRegister(
		wsConnections,
		socketEvents,
		socketDropped,
		queueJobs,
		queueDuration,
		sseStreams,
		sseFrames,
		httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func WSConnected() { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func SocketEventIn(event string) { socketEvents.WithLabelValues(event, "in").Inc() }
func SocketEventOut(event string) { socketEvents.WithLabelValues(event, "out").Inc() }
func SocketFrameDropped() { socketDropped.Inc() }

func RecordJob(name, outcome string, d time.Duration) {
	queueJobs.WithLabelValues(name, outcome).Inc()
	queueDuration.WithLabelValues(name).Observe(d.Seconds())
}

func SSEOpened() { sseStreams.Inc() }
func SSEClosed() { sseStreams.Dec() }
func SSEFrame(result string) { sseFrames.WithLabelValues(result).Inc() }

func ObserveHTTP(method, path, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
