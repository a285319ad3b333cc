package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/cache"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/database"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/server"
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		add("invalid HTTP port %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		add("invalid metrics port %d", c.Server.MetricsPort)
	} else if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		add("metrics port must differ from the HTTP port")
	}
	if c.Server.RateLimitRPS < 0 {
		add("rate_limit_rps must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		add("rate_limit_burst must be at least 1 when rate limiting is on")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		add("tls_cert_file and tls_key_file must be set together")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "mysql", "sqlite":
	default:
		add("unsupported database driver %q", c.Database.Driver)
	}
	if err := c.Database.PoolConfig().Validate(); err != nil {
		add("database pool: %v", err)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis.addr is required when redis is enabled")
	}

	seen := make(map[string]bool)
	for _, p := range c.Registry.Priority {
		if !imagegen.ProviderID(p).Valid() {
			add("unknown provider %q in registry.priority", p)
		}
		if seen[p] {
			add("duplicate provider %q in registry.priority", p)
		}
		seen[p] = true
	}
	if c.Registry.FailureThreshold < 1 {
		add("registry.failure_threshold must be at least 1")
	}
	if c.Registry.HealthTTL <= 0 || c.Registry.ProbeTimeout <= 0 {
		add("registry.health_ttl and registry.probe_timeout must be positive")
	}
	if c.Registry.WarmSchedule != "" {
		if _, err := cron.ParseStandard(c.Registry.WarmSchedule); err != nil {
			add("invalid registry.warm_schedule %q: %v", c.Registry.WarmSchedule, err)
		}
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		add("auth is enabled but neither jwt_secret nor api_keys is set")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("invalid log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log format must be json or console")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			d.User, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// PoolConfig 连接池参数
func (d *DatabaseConfig) PoolConfig() database.PoolConfig {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = d.MaxOpenConns
	pool.MaxIdleConns = d.MaxIdleConns
	pool.ConnMaxLifetime = d.ConnMaxLifetime
	return pool
}

// OpenConfig 转换为 database.Open 的参数
func (d *DatabaseConfig) OpenConfig() database.Config {
	cfg := database.DefaultConfig()
	cfg.Driver = strings.ToLower(d.Driver)
	cfg.DSN = d.DSN()
	cfg.Pool = d.PoolConfig()
	return cfg
}

// CacheConfig 转换为 cache.NewManager 的参数
func (r *RedisConfig) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = r.Addr
	cfg.Password = r.Password
	cfg.DB = r.DB
	cfg.TLS = r.TLS
	if r.PoolSize > 0 {
		cfg.PoolSize = r.PoolSize
	}
	cfg.MinIdleConns = r.MinIdleConns
	if r.KeyPrefix != "" {
		cfg.KeyPrefix = r.KeyPrefix
	}
	return cfg
}

// ManagerConfig 转换为 server.NewManager 的参数
func (s *ServerConfig) ManagerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", s.HTTPPort)
	cfg.ReadTimeout = s.ReadTimeout
	cfg.WriteTimeout = s.WriteTimeout
	cfg.IdleTimeout = s.IdleTimeout
	cfg.ShutdownTimeout = s.ShutdownTimeout
	cfg.TLSCertFile = s.TLSCertFile
	cfg.TLSKeyFile = s.TLSKeyFile
	return cfg
}

// byID 以供应商标识索引配置
func (p *ProvidersConfig) byID() map[imagegen.ProviderID]ProviderConfig {
	return map[imagegen.ProviderID]ProviderConfig{
		imagegen.ProviderOpenAI:    p.OpenAI,
		imagegen.ProviderFlux:      p.Flux,
		imagegen.ProviderStability: p.Stability,
		imagegen.ProviderIdeogram:  p.Ideogram,
		imagegen.ProviderImagen:    p.Imagen,
		imagegen.ProviderRecraft:   p.Recraft,
		imagegen.ProviderFal:       p.Fal,
	}
}

// RegistryConfig 合并 providers 与 registry 两节为 imagegen.RegistryConfig
func (c *Config) RegistryConfig() imagegen.RegistryConfig {
	out := imagegen.DefaultRegistryConfig()
	for id, p := range c.Providers.byID() {
		out.Providers[id] = imagegen.ProviderConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			Timeout:      p.Timeout,
			Enabled:      p.Enabled,
			PollInterval: p.PollInterval,
		}
	}
	if len(c.Registry.Priority) > 0 {
		out.Priority = make([]imagegen.ProviderID, 0, len(c.Registry.Priority))
		for _, id := range c.Registry.Priority {
			out.Priority = append(out.Priority, imagegen.ProviderID(id))
		}
	}
	out.HealthTTL = c.Registry.HealthTTL
	out.FailureThreshold = c.Registry.FailureThreshold
	out.ProbeTimeout = c.Registry.ProbeTimeout
	return out
}
