package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blog",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blog",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"method", "path"})

	contentOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "content",
		Name:      "operations_total",
		Help:      "Content mutations by operation and outcome.",
	}, []string{"op", "outcome"})

	sideEffectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "content",
		Name:      "side_effect_failures_total",
		Help:      "Best-effort cache or index updates that failed.",
	}, []string{"target"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Post view cache lookups by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpInFlight, httpRequests, httpDuration,
		contentOps, sideEffectFailures, cacheLookups,
	)
}

// Middleware records request count, latency and in-flight gauge, labelled
// by the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

func RecordContentOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	contentOps.WithLabelValues(op, outcome).Inc()
}

func RecordSideEffectFailure(target string) {
	sideEffectFailures.WithLabelValues(target).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}
