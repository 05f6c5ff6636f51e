package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/api"
	"github.com/sjmatta/poolstall/internal/metrics"
	"github.com/sjmatta/poolstall/internal/pool"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器。
//
// bounded 模式下 /health 刻意经过与流式请求相同的 worker 池：
// 获取一个槽位、在槽位内做一次短暂的阻塞等待、再返回。池被长流
// 占满时，这个本应瞬时完成的请求就会排队——它的延迟因此成为池
// 饱和程度的直接度量。unbounded 模式下 /health 完全不碰池，
// 无论并发流多少延迟都保持恒定。
type HealthHandler struct {
	mode       string
	pool       *pool.WorkerPool // 仅 bounded 模式非空
	probeDelay time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewHealthHandler 创建不经过池的健康检查处理器（unbounded 模式）。
func NewHealthHandler(mode string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		mode:   mode,
		logger: logger,
	}
}

// NewPoolCoupledHealthHandler 创建经过 worker 池的健康检查处理器
// （bounded 模式）。probeDelay 是在槽位内执行的阻塞等待时长。
func NewPoolCoupledHealthHandler(mode string, p *pool.WorkerPool, probeDelay time.Duration, collector *metrics.Collector, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		mode:       mode,
		pool:       p,
		probeDelay: probeDelay,
		metrics:    collector,
		logger:     logger,
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求。响应内容始终是合法 JSON；
// 只有延迟（而非内容）反映系统退化。
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		WriteJSON(w, http.StatusOK, api.HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Mode:      h.mode,
			Message:   "health check successful - async and always responsive",
		})
		return
	}

	// bounded 模式：与流式请求争抢同一个池
	acquireStart := time.Now()
	release, err := h.pool.Acquire(r.Context())
	if err != nil {
		// 排队期间客户端已放弃（超时/断开），无需响应
		h.logger.Debug("health check abandoned while queued", zap.Error(err))
		return
	}
	defer release()

	wait := time.Since(acquireStart)
	if h.metrics != nil {
		h.metrics.RecordPoolAcquireWait("health", wait)
	}
	if wait > time.Second {
		h.logger.Warn("health check starved by saturated worker pool",
			zap.Duration("queue_wait", wait),
			zap.Int("slots_in_use", h.pool.InUse()),
		)
	}

	// 在槽位内做一次短暂阻塞等待，确保真实占用一个 worker
	time.Sleep(h.probeDelay)

	WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Mode:      h.mode,
		Message:   "health check executed in worker slot - pool may be exhausted",
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格活跃度探针）。
// 两种模式下都不经过池：进程监督者需要的是进程存活信号，
// 而不是池饱和信号。
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Mode:      h.mode,
	})
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, api.VersionInfo{
			Version:   version,
			BuildTime: buildTime,
			GitCommit: gitCommit,
		})
	}
}
