// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 脚本执行指标
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	executionsRunning prometheus.Gauge

	// 校验指标
	validationFailures *prometheus.CounterVec

	// 输出流指标
	streamEventsTotal *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewCollector 创建指标收集器
// 使用独立的 Registry，避免重复注册冲突
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 脚本执行指标
	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of script executions",
		},
		[]string{"script", "status"},
	)

	c.executionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Script execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"script"},
	)

	c.executionsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_running",
			Help:      "Number of executions currently running",
		},
	)

	// 校验指标
	c.validationFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Total number of rejected execution requests",
		},
		[]string{"kind"}, // kind: script, parameter
	)

	// 输出流指标
	c.streamEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of output events published",
		},
		[]string{"type"},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Handler 返回用于 /metrics 端点的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// 🎯 执行指标记录
// =============================================================================

// ExecutionStarted 记录一次执行开始
func (c *Collector) ExecutionStarted() {
	c.executionsRunning.Inc()
}

// RecordExecution 记录一次执行结束
func (c *Collector) RecordExecution(script, status string, duration time.Duration) {
	c.executionsRunning.Dec()
	c.executionsTotal.WithLabelValues(script, status).Inc()
	c.executionDuration.WithLabelValues(script).Observe(duration.Seconds())
}

// RecordValidationFailure 记录一次校验拒绝
// kind: script（危险脚本）或 parameter（参数不合法）
func (c *Collector) RecordValidationFailure(kind string) {
	c.validationFailures.WithLabelValues(kind).Inc()
}

// RecordStreamEvent 记录一次输出事件发布
func (c *Collector) RecordStreamEvent(eventType string) {
	c.streamEventsTotal.WithLabelValues(eventType).Inc()
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
