package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标，否则会 panic。
	once sync.Once

	// labels:
	// - route: 路由模板（例如 /api/v1/links/{id}），不要用真实 path，否则 label 无限增长
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	LinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hexlink_links_created_total",
			Help: "Short links successfully stored.",
		},
	)

	// kind: invalid_url / storage_failure
	ShortenFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexlink_shorten_failures_total",
			Help: "Shorten calls that did not store a link, by outcome.",
		},
		[]string{"kind"},
	)

	Redirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hexlink_redirects_total",
			Help: "Short link redirects served.",
		},
	)

	// layer: l1 / l2 / bloom; result: hit / hit_negative / miss / reject
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexlink_cache_operations_total",
			Help: "Resolve cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	ClicksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hexlink_clicks_dropped_total",
			Help: "Click events dropped because the collector buffer was full or closed.",
		},
	)
)

// Init 注册指标：只允许注册一次
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LinksCreated,
			ShortenFailures,
			Redirects,
			CacheOperations,
			ClicksDropped,
		)
	})
}
