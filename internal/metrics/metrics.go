package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	WsDuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_duplicate_messages_total",
		Help: "Total number of inbound chat messages dropped as duplicates",
	})
	WsPersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_persist_failures_total",
		Help: "Total number of chat messages that failed to persist",
	})
	WsSessionsDisplacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_sessions_displaced_total",
		Help: "Total number of connections evicted by a newer connection of the same user",
	})
	AIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_requests_total",
		Help: "Total number of generative AI calls",
	}, []string{"op", "outcome"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsMessagesTotal,
		WsDuplicatesTotal,
		WsPersistFailuresTotal,
		WsSessionsDisplacedTotal,
		AIRequestsTotal,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
