package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/api/handlers"
	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/engine"
	"github.com/BaSui01/scriptflow/internal/crypto"
	"github.com/BaSui01/scriptflow/internal/metrics"
	"github.com/BaSui01/scriptflow/internal/server"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/streaming"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ScriptFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	store  *store.GormStore
	broker *streaming.Broker

	// 服务层
	executionService  *service.ExecutionService
	scriptService     *service.ScriptService
	credentialService *service.CredentialService

	// Handlers
	healthHandler     *handlers.HealthHandler
	scriptHandler     *handlers.ScriptHandler
	executionHandler  *handlers.ExecutionHandler
	credentialHandler *handlers.CredentialHandler
	streamHandler     *handlers.StreamHandler

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
	s.metricsCollector = metrics.NewCollector("scriptflow", s.logger)

	// 2. 初始化基础设施与服务层
	if err := s.initServices(); err != nil {
		return fmt.Errorf("failed to init services: %w", err)
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
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initServices 初始化存储、消息代理、执行引擎与服务层
func (s *Server) initServices() error {
	// 数据库
	st, err := store.Open(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	// Redis 输出流代理（不可用时降级：无实时输出，执行照常）
	broker, err := streaming.NewBroker(s.cfg.Redis, s.logger)
	if err != nil {
		s.logger.Warn("Redis not available, live output streaming disabled", zap.Error(err))
	} else {
		s.broker = broker
	}

	// 执行引擎
	runner, err := engine.NewRunnerWithCandidates(s.cfg.Engine.Interpreters, s.logger)
	if err != nil {
		return fmt.Errorf("no usable interpreter: %w", err)
	}
	executor := engine.NewExecutor(runner, s.logger)

	// 服务层
	var publisher service.Publisher
	if s.broker != nil {
		publisher = s.broker
	}
	s.executionService = service.NewExecutionService(s.store, executor, publisher, s.metricsCollector, s.cfg.Engine, s.logger)
	s.scriptService = service.NewScriptService(s.store, s.cfg.Engine.MaxScriptBytes, s.cfg.Engine.MaxTimeout, s.logger)

	// 凭据服务（需要配置加密密钥）
	if s.cfg.Auth.CredentialKey != "" {
		sealer, err := crypto.NewSealerFromHex(s.cfg.Auth.CredentialKey)
		if err != nil {
			return fmt.Errorf("invalid credential key: %w", err)
		}
		s.credentialService = service.NewCredentialService(s.store, sealer, s.logger)
	} else {
		s.logger.Info("Credential key not configured, credential endpoints disabled")
	}

	// Handlers
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", s.store.Ping))
	if s.broker != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", s.broker.Ping))
	}
	s.scriptHandler = handlers.NewScriptHandler(s.scriptService, s.logger)
	s.executionHandler = handlers.NewExecutionHandler(s.executionService, s.logger)
	if s.credentialService != nil {
		s.credentialHandler = handlers.NewCredentialHandler(s.credentialService, s.logger)
	}
	if s.broker != nil {
		s.streamHandler = handlers.NewStreamHandler(s.executionService, s.broker, s.cfg.Server.AllowedOrigin, s.logger)
	}

	s.logger.Info("Services initialized",
		zap.String("interpreter", executor.Version()),
		zap.Bool("streaming", s.broker != nil),
		zap.Bool("credentials", s.credentialService != nil),
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("POST /api/v1/scripts", s.scriptHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/scripts", s.scriptHandler.HandleList)
	mux.HandleFunc("GET /api/v1/scripts/{id}", s.scriptHandler.HandleGet)
	mux.HandleFunc("PUT /api/v1/scripts/{id}", s.scriptHandler.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/scripts/{id}", s.scriptHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/scripts/{id}/versions", s.scriptHandler.HandleVersions)

	mux.HandleFunc("POST /api/v1/scripts/{id}/execute", s.executionHandler.HandleExecute)
	mux.HandleFunc("POST /api/v1/scripts/{id}/validate", s.executionHandler.HandleValidate)
	mux.HandleFunc("GET /api/v1/executions", s.executionHandler.HandleList)
	mux.HandleFunc("GET /api/v1/executions/stats", s.executionHandler.HandleStats)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.executionHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/executions/{id}", s.executionHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/system/info", s.executionHandler.HandleSystemInfo)

	if s.credentialHandler != nil {
		mux.HandleFunc("POST /api/v1/credentials", s.credentialHandler.HandleSave)
		mux.HandleFunc("GET /api/v1/credentials", s.credentialHandler.HandleList)
		mux.HandleFunc("GET /api/v1/credentials/{name}", s.credentialHandler.HandleReveal)
		mux.HandleFunc("DELETE /api/v1/credentials/{name}", s.credentialHandler.HandleDelete)
	}

	if s.streamHandler != nil {
		mux.HandleFunc("GET /ws/executions/{id}", s.streamHandler.HandleStream)
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.AllowedOrigin),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.ConfigFromServer(s.cfg.Server, s.cfg.Server.HTTPPort)

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
	mux.Handle("/metrics", s.metricsCollector.Handler())

	serverConfig := server.ConfigFromServer(s.cfg.Server, s.cfg.Server.MetricsPort)

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
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 等待进行中的执行落库
	if s.executionService != nil {
		if err := s.executionService.Drain(ctx); err != nil {
			s.logger.Warn("Executions still running at shutdown", zap.Error(err))
		}
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

	// 4. 关闭基础设施连接
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Error("Broker shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Store shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
