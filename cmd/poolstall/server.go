package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/api/handlers"
	"github.com/sjmatta/poolstall/config"
	"github.com/sjmatta/poolstall/internal/metrics"
	"github.com/sjmatta/poolstall/internal/pool"
	"github.com/sjmatta/poolstall/internal/server"
	"github.com/sjmatta/poolstall/upstream"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 poolstall 的主服务器。启动时根据 cfg.Mode 装配 bounded 或
// unbounded 的流式链路，运行期间模式不再改变。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// bounded 模式下的 worker 池；unbounded 模式下为 nil
	workerPool *pool.WorkerPool

	// Handlers
	healthHandler *handlers.HealthHandler
	infoHandler   *handlers.InfoHandler
	streamRelay   handlers.StreamRelay

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("poolstall", s.logger)

	// 2. 初始化 Handlers（模式装配发生在这里）
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("mode", string(s.cfg.Mode)),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers。bounded 与 unbounded 共用同一个上游
// 客户端，区别只在流的消费方式和健康检查是否经过 worker 池。
func (s *Server) initHandlers() error {
	client := upstream.NewClient(s.cfg.Upstream, s.logger)

	switch s.cfg.Mode {
	case config.ModeBounded:
		s.workerPool = pool.New(s.cfg.Pool.MaxWorkers)
		s.metricsCollector.RegisterPool(s.workerPool)

		s.streamRelay = handlers.NewBoundedRelay(s.workerPool, client, s.metricsCollector, s.logger)
		s.healthHandler = handlers.NewPoolCoupledHealthHandler(
			string(s.cfg.Mode), s.workerPool, s.cfg.Pool.HealthProbeDelay, s.metricsCollector, s.logger)

		s.logger.Warn("Bounded mode: health checks share the worker pool with streams",
			zap.Int("max_workers", s.cfg.Pool.MaxWorkers))

	case config.ModeUnbounded:
		s.streamRelay = handlers.NewAsyncRelay(client, s.metricsCollector, s.logger)
		s.healthHandler = handlers.NewHealthHandler(string(s.cfg.Mode), s.logger)

	default:
		return fmt.Errorf("unknown mode: %q", s.cfg.Mode)
	}

	s.infoHandler = handlers.NewInfoHandler(s.cfg.Mode, s.cfg.Pool.MaxWorkers)

	s.logger.Info("Handlers initialized", zap.String("mode", string(s.cfg.Mode)))
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动主 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	// /health 在 bounded 模式下经过 worker 池，/healthz 始终直接应答
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/", s.infoHandler.HandleRoot)
	mux.HandleFunc("/api/v1/info", s.infoHandler.HandleInfo)
	mux.HandleFunc("/api/v1/chat/stream", s.streamRelay.HandleStream)

	// ========================================
	// 构建中间件链
	// ========================================
	// 限流跳过健康检查端点，保证它们的延迟只反映池的拥塞，
	// 不混入限流排队的时间
	skipLimitPaths := []string{"/health", "/healthz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, skipLimitPaths, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		// WriteTimeout 必须覆盖最长的流（chunks x delay），否则服务器
		// 会在流中途切断连接
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown complete")
}
