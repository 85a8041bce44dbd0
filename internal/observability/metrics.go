package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ndwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	publishedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "publisher",
			Name:      "messages_total",
			Help:      "Array messages handed to the transport.",
		},
		[]string{"stream"},
	)
	publishedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "publisher",
			Name:      "bytes_total",
			Help:      "Frame bytes handed to the transport.",
		},
		[]string{"stream"},
	)
	publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "publisher",
			Name:      "failures_total",
			Help:      "Failed emissions by reason.",
		},
		[]string{"stream", "reason"},
	)
	consumedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Array messages decoded from the transport.",
		},
		[]string{"stream"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "consumer",
			Name:      "decode_failures_total",
			Help:      "Received frame lists that failed to decode.",
		},
		[]string{"reason"},
	)
	transportPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ndwire",
			Subsystem: "transport",
			Name:      "peers",
			Help:      "Connected peers per socket.",
		},
		[]string{"kind", "endpoint"},
	)
	recorderAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndwire",
			Subsystem: "recorder",
			Name:      "appends_total",
			Help:      "Frame lists persisted by the recorder.",
		},
		[]string{"stream"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			publishedMessages,
			publishedBytes,
			publishFailures,
			consumedMessages,
			decodeFailures,
			transportPeers,
			recorderAppends,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPublish(stream string, bytes int) {
	RegisterMetrics()
	publishedMessages.WithLabelValues(stream).Inc()
	publishedBytes.WithLabelValues(stream).Add(float64(bytes))
}

func RecordPublishFailure(stream, reason string) {
	RegisterMetrics()
	publishFailures.WithLabelValues(stream, reason).Inc()
}

func RecordConsume(stream string) {
	RegisterMetrics()
	consumedMessages.WithLabelValues(stream).Inc()
}

func RecordDecodeFailure(reason string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(reason).Inc()
}

func SetTransportPeers(kind, endpoint string, n int) {
	RegisterMetrics()
	transportPeers.WithLabelValues(kind, endpoint).Set(float64(n))
}

func RecordRecorderAppend(stream string) {
	RegisterMetrics()
	recorderAppends.WithLabelValues(stream).Inc()
}
