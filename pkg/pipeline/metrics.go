package pipeline

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments recorded by a pipeline. One
// instance may be shared by several pipelines.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  prometheus.Counter
}

// NewMetrics registers the pipeline instruments with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdk_http_requests_total",
			Help: "HTTP attempts made by the SDK pipeline, by method and status code.",
		}, []string{"method", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdk_http_request_duration_seconds",
			Help:    "Per-attempt request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "sdk_http_retries_total",
			Help: "Retries performed by the pipeline retry policy.",
		}),
	}
}

// metricsPolicy sits per-try so each attempt is observed.
type metricsPolicy struct {
	metrics *Metrics
}

func (m *metricsPolicy) Do(req *Request) (*http.Response, error) {
	start := time.Now()
	resp, err := req.Next()
	m.metrics.duration.WithLabelValues(req.Raw().Method).Observe(time.Since(start).Seconds())

	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	m.metrics.requests.WithLabelValues(req.Raw().Method, code).Inc()
	return resp, err
}
