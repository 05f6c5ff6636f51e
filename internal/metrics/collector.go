package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/internal/pool"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	namespace string

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 流式指标
	streamsActive      prometheus.Gauge
	streamsTotal       *prometheus.CounterVec
	streamDuration     *prometheus.HistogramVec
	streamChunksTotal  *prometheus.CounterVec

	// worker 池指标
	poolAcquireWait *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			// 健康检查在池饱和时延迟达到秒级，桶要覆盖到分钟
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// 流式指标
	c.streamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of streams currently being relayed",
		},
	)

	c.streamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of relayed streams",
		},
		[]string{"mode", "status"}, // status: completed, disconnected, failed
	)

	c.streamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "End-to-end stream relay duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	c.streamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_relayed_total",
			Help:      "Total number of chunks relayed to clients",
		},
		[]string{"mode"},
	)

	// worker 池指标
	c.poolAcquireWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_acquire_wait_seconds",
			Help:      "Time spent waiting for a worker slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"caller"}, // caller: stream, health
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🌊 流式指标记录
// =============================================================================

// StreamStarted 记录流开始
func (c *Collector) StreamStarted() {
	c.streamsActive.Inc()
}

// StreamFinished 记录流结束
func (c *Collector) StreamFinished(mode, status string, duration time.Duration, chunks int) {
	c.streamsActive.Dec()
	c.streamsTotal.WithLabelValues(mode, status).Inc()
	c.streamDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.streamChunksTotal.WithLabelValues(mode).Add(float64(chunks))
}

// =============================================================================
// 🏊 worker 池指标记录
// =============================================================================

// RecordPoolAcquireWait 记录获取槽位的等待时间
func (c *Collector) RecordPoolAcquireWait(caller string, wait time.Duration) {
	c.poolAcquireWait.WithLabelValues(caller).Observe(wait.Seconds())
}

// RegisterPool 以 GaugeFunc 形式暴露池的容量与占用情况
func (c *Collector) RegisterPool(p *pool.WorkerPool) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "pool_slots_capacity",
			Help:      "Fixed worker slot capacity",
		},
		func() float64 { return float64(p.Capacity()) },
	)

	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "pool_slots_in_use",
			Help:      "Worker slots currently occupied",
		},
		func() float64 { return float64(p.InUse()) },
	)

	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "pool_waiters",
			Help:      "Goroutines queued waiting for a worker slot",
		},
		func() float64 { return float64(p.Waiting()) },
	)
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
