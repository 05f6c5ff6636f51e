package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/internal/metrics"
	"github.com/sjmatta/poolstall/internal/pool"
	"github.com/sjmatta/poolstall/types"
	"github.com/sjmatta/poolstall/upstream"
)

// =============================================================================
// 🌊 流式 Relay
// =============================================================================

// Upstream 是慢速上游客户端的流式能力。
type Upstream interface {
	Stream(ctx context.Context) (<-chan upstream.StreamChunk, error)
	StreamBlocking(ctx context.Context, relay func(upstream.StreamChunk) error) error
}

// StreamRelay 把一条上游流转发给客户端。两个实现共享同一请求形状，
// 启动时按配置选定其一绑定到流式路由。
type StreamRelay interface {
	// Mode 返回 relay 的模式名（bounded / unbounded）
	Mode() string
	// HandleStream 处理 GET|POST /api/v1/chat/stream
	HandleStream(w http.ResponseWriter, r *http.Request)
}

// 流结束状态，用于指标与日志
const (
	streamCompleted    = "completed"
	streamDisconnected = "disconnected"
	streamFailed       = "failed"
)

// =============================================================================
// 🔥 BoundedRelay（缺陷复现模式）
// =============================================================================

// BoundedRelay 先从固定容量池获取一个 worker 槽位（满了就排队），
// 然后在持有槽位期间阻塞式地消费上游并转发每个 chunk，直到整条流
// 结束或客户端断开才释放。这正是被复现的缺陷：把 I/O 等待耦合到
// 有界并发资源上，同池的无关请求（包括健康检查）会被一并卡住。
type BoundedRelay struct {
	pool     *pool.WorkerPool
	upstream Upstream
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewBoundedRelay 创建 bounded 模式的流式 relay。
func NewBoundedRelay(p *pool.WorkerPool, up Upstream, collector *metrics.Collector, logger *zap.Logger) *BoundedRelay {
	return &BoundedRelay{
		pool:     p,
		upstream: up,
		metrics:  collector,
		logger:   logger.With(zap.String("relay", "bounded")),
	}
}

func (h *BoundedRelay) Mode() string { return "bounded" }

// HandleStream 处理流式请求。槽位在响应头写出之前获取，
// 排队等待因此直接表现为首字节延迟。
func (h *BoundedRelay) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acquireStart := time.Now()
	release, err := h.pool.Acquire(ctx)
	if err != nil {
		// 排队期间客户端已断开，没有可写的对端
		h.logger.Debug("client gone while queued for slot", zap.Error(err))
		return
	}
	defer release()

	wait := time.Since(acquireStart)
	if h.metrics != nil {
		h.metrics.RecordPoolAcquireWait("stream", wait)
	}
	h.logger.Info("stream slot acquired",
		zap.Duration("queue_wait", wait),
		zap.Int("slots_in_use", h.pool.InUse()),
	)

	relayStream(w, r, h.Mode(), h.metrics, h.logger, func(emit func(upstream.StreamChunk) error) error {
		// 阻塞式消费：整条流期间一直占着槽位
		return h.upstream.StreamBlocking(ctx, emit)
	})
}

// =============================================================================
// ✅ AsyncRelay（修复模式）
// =============================================================================

// AsyncRelay 不占用任何有界资源：上游消费通过 channel 异步进行，
// 每个 chunk 边界都让出控制权并检查客户端断开。并发流数量原则上
// 不受限（只受内存与文件描述符约束）。
type AsyncRelay struct {
	upstream Upstream
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewAsyncRelay 创建 unbounded 模式的流式 relay。
func NewAsyncRelay(up Upstream, collector *metrics.Collector, logger *zap.Logger) *AsyncRelay {
	return &AsyncRelay{
		upstream: up,
		metrics:  collector,
		logger:   logger.With(zap.String("relay", "unbounded")),
	}
}

func (h *AsyncRelay) Mode() string { return "unbounded" }

func (h *AsyncRelay) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	relayStream(w, r, h.Mode(), h.metrics, h.logger, func(emit func(upstream.StreamChunk) error) error {
		ch, err := h.upstream.Stream(ctx)
		if err != nil {
			return err
		}

		for {
			select {
			case chunk, ok := <-ch:
				if !ok {
					return nil
				}
				if chunk.Err != nil {
					return chunk.Err
				}
				if err := emit(chunk); err != nil {
					return err
				}
			case <-ctx.Done():
				// 客户端断开：一个 chunk 间隔内感知，静默终止
				return ctx.Err()
			}
		}
	})
}

// =============================================================================
// 🔧 公共转发逻辑
// =============================================================================

// relayStream 承担两种 relay 共享的 SSE 写出部分：设置响应头、
// 逐块写出并 flush、错误与断开的统一收尾。consume 负责按各自的
// 方式拉取上游 chunk 并通过 emit 回调交回。
func relayStream(
	w http.ResponseWriter,
	r *http.Request,
	mode string,
	collector *metrics.Collector,
	logger *zap.Logger,
	consume func(emit func(upstream.StreamChunk) error) error,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.Header().Set("X-Stream-Type", mode)

	if collector != nil {
		collector.StreamStarted()
	}

	start := time.Now()
	chunks := 0
	status := streamCompleted

	err := consume(func(chunk upstream.StreamChunk) error {
		if _, werr := w.Write([]byte("data: ")); werr != nil {
			return werr
		}
		if _, werr := w.Write(chunk.Data); werr != nil {
			return werr
		}
		if _, werr := w.Write([]byte("\n\n")); werr != nil {
			return werr
		}
		flusher.Flush()
		chunks++
		return nil
	})

	switch {
	case err == nil:
		// 序列耗尽，发送结束标记
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()

	case r.Context().Err() != nil:
		// 客户端断开不是错误：停止消耗资源，静默结束
		status = streamDisconnected
		logger.Info("client disconnected mid-stream",
			zap.Int("chunks_sent", chunks),
			zap.Duration("elapsed", time.Since(start)),
		)

	default:
		// 上游失败只终止这一条流：发出单个 SSE error 事件
		status = streamFailed
		logger.Error("stream failed", zap.Error(err))
		errPayload, _ := json.Marshal(map[string]string{"error": err.Error()})
		w.Write([]byte("event: error\n"))
		w.Write([]byte("data: "))
		w.Write(errPayload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	if collector != nil {
		collector.StreamFinished(mode, status, time.Since(start), chunks)
	}

	if status == streamCompleted {
		logger.Info("stream completed",
			zap.Int("chunks_sent", chunks),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
