package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/api/handlers"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/config"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen/settings"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/cache"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/database"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/metrics"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/migration"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/scheduler"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/server"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/telemetry"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装依赖并管理 HTTP 与 Metrics 两个监听端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector *metrics.Collector
	pool      *database.PoolManager
	cache     *cache.Manager
	service   *imagegen.Service
	warmer    *scheduler.HealthWarmer

	// 后台 goroutine (限流清理、连接池指标) 的生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
		ctx:    ctx,
		cancel: cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动所有监听. 数据库与 Redis 不可用时降级运行:
// 没有配置档存储时生成使用能力默认值, 没有 Redis 时健康状态只在进程内缓存.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("eventimage", prometheus.DefaultRegisterer, s.logger)

	store := s.initSettingsStore()
	registryOpts := s.initHealthStore()

	registry := imagegen.NewRegistry(s.cfg.RegistryConfig(), s.logger, registryOpts...)
	s.service = imagegen.NewService(registry, store, s.logger,
		imagegen.WithGenerateTimeout(s.cfg.Server.GenerateTimeout))

	// 并发探测, 单轮上限取两倍单次探测超时
	s.warmer = scheduler.NewHealthWarmer(registry, s.cfg.Registry.WarmSchedule, 2*s.cfg.Registry.ProbeTimeout, s.logger)
	if err := s.warmer.Start(s.ctx); err != nil {
		return fmt.Errorf("failed to start health warmer: %w", err)
	}

	// metrics 监听先起, 就绪检查需要它的状态
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("providers", len(registry.ListAvailable())),
		zap.Bool("settings_store", store != nil),
		zap.Bool("shared_health_cache", s.cache != nil),
	)
	return nil
}

// initSettingsStore 打开数据库. 返回值为接口类型, 失败时保持 nil 接口.
func (s *Server) initSettingsStore() imagegen.SettingsStore {
	dbCfg := s.cfg.Database.OpenConfig()
	if s.cfg.Database.AutoMigrate {
		if err := runAutoMigrate(s.ctx, dbCfg); err != nil {
			s.logger.Error("database migration failed, settings store disabled", zap.Error(err))
			return nil
		}
	}

	pool, err := database.Open(dbCfg, s.logger)
	if err != nil {
		s.logger.Warn("database not available, settings profiles disabled", zap.Error(err))
		return nil
	}
	s.pool = pool

	s.wg.Add(1)
	go s.recordPoolStats(dbCfg.Driver)

	return settings.NewStore(pool.DB(), s.logger, settings.WithTransactor(pool, s.cfg.Database.MaxRetries))
}

func runAutoMigrate(ctx context.Context, cfg database.Config) error {
	m, err := migration.NewMigratorFromDatabaseConfig(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

// initHealthStore 连接 Redis, 多实例共享供应商健康结果
func (s *Server) initHealthStore() []imagegen.RegistryOption {
	if !s.cfg.Redis.Enabled {
		return nil
	}
	m, err := cache.NewManager(s.cfg.Redis.CacheConfig(), s.logger)
	if err != nil {
		s.logger.Warn("redis not available, provider health cached per instance", zap.Error(err))
		return nil
	}
	s.cache = m
	return []imagegen.RegistryOption{
		imagegen.WithHealthStore(cache.NewHealthStore(m).WithObserver(s.collector)),
	}
}

func (s *Server) recordPoolStats(driver string) {
	defer s.wg.Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			st := s.pool.GetStats()
			s.collector.RecordDBConnections(driver, st.OpenConnections, st.Idle, st.InUse)
			if st.OpenConnections >= st.MaxOpenConnections && st.MaxOpenConnections > 0 {
				s.logger.Warn("database pool saturated",
					zap.Int("open_connections", st.OpenConnections),
					zap.Int64("wait_count", st.WaitCount),
					zap.Duration("wait_duration", st.WaitDuration),
				)
			}
		}
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部路由. 方法写在模式里, 不匹配的方法由 ServeMux 返回 405.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	}
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}
	if s.metricsManager != nil {
		health.RegisterCheck(listenerCheck("metrics_server", s.metricsManager))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	images := handlers.NewImageHandler(s.service, s.collector, s.logger)
	mux.HandleFunc("POST /api/v1/images/generations", images.HandleGenerate)
	mux.HandleFunc("POST /api/v1/images/estimate", images.HandleEstimate)

	providers := handlers.NewProviderHandler(s.service, s.logger)
	mux.HandleFunc("GET /api/v1/providers", providers.HandleList)
	mux.HandleFunc("GET /api/v1/providers/health", providers.HandleHealth)
	mux.HandleFunc("GET /api/v1/providers/{id}/capabilities", providers.HandleCapabilities)
	mux.HandleFunc("GET /api/v1/providers/{id}/settings", providers.HandleEffectiveSettings)

	// 配置档管理需要管理员或服务调用方. 关闭鉴权 (本地开发) 时不检查角色.
	admin := RequireRole(s.cfg.Auth.AdminRole, handlers.ServiceRole)
	if !s.cfg.Auth.Enabled {
		s.logger.Warn("authentication disabled, settings endpoints are open")
		admin = func(next http.Handler) http.Handler { return next }
	}
	profiles := handlers.NewSettingsHandler(s.service, s.logger)
	mux.Handle("GET /api/v1/settings/profiles", admin(http.HandlerFunc(profiles.HandleList)))
	mux.Handle("POST /api/v1/settings/profiles", admin(http.HandlerFunc(profiles.HandleUpsert)))
	mux.Handle("DELETE /api/v1/settings/profiles/{id}", admin(http.HandlerFunc(profiles.HandleDelete)))

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		BodyLimit(s.cfg.Server.MaxBodyBytes),
		Authenticate(s.cfg.Auth, skipAuthPaths, s.logger),
		RateLimiter(s.ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.collector, s.logger),
	)
}

// listenerCheck 在独立监听退出后让就绪检查失败
func listenerCheck(name string, m *server.Manager) handlers.HealthCheck {
	return handlers.NewPingCheck(name, func(context.Context) error {
		if !m.IsRunning() {
			return fmt.Errorf("%s is not running", name)
		}
		return nil
	})
}

func (s *Server) startHTTPServer() error {
	s.httpManager = server.NewManager(s.routes(), s.cfg.Server.ManagerConfig(), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号、ctx 结束或任一监听异常退出, 然后关闭所有资源
func (s *Server) WaitForShutdown(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsErr error
	done := make(chan struct{})
	if s.metricsManager != nil {
		go func() {
			defer close(done)
			select {
			case err := <-s.metricsManager.Errors():
				s.logger.Error("metrics server exited unexpectedly", zap.Error(err))
				metricsErr = fmt.Errorf("metrics server: %w", err)
				cancel()
			case <-ctx.Done():
			}
		}()
	} else {
		close(done)
	}

	var serveErr error
	if s.httpManager != nil {
		serveErr = s.httpManager.WaitForShutdown(ctx)
	}
	cancel()
	<-done
	return errors.Join(serveErr, metricsErr, s.Shutdown())
}

// Shutdown 按依赖逆序关闭
func (s *Server) Shutdown() error {
	s.logger.Info("starting graceful shutdown")
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if s.warmer != nil {
		s.warmer.Stop()
	}
	s.wg.Wait()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
	} else {
		s.logger.Info("graceful shutdown completed")
	}
	return err
}
