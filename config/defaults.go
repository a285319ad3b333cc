package config

import (
	"time"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Providers: DefaultProvidersConfig(),
		Registry:  DefaultRegistryConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    180 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
		GenerateTimeout: 150 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultDatabaseConfig 本地默认使用 sqlite 文件
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Name:            "eventimage.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		MaxRetries:      3,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "eventimage:",
	}
}

// DefaultProvidersConfig enables every provider; one without an API key is
// still skipped by the registry.
func DefaultProvidersConfig() ProvidersConfig {
	on := ProviderConfig{Enabled: true}
	return ProvidersConfig{
		OpenAI:    on,
		Flux:      on,
		Stability: on,
		Ideogram:  on,
		Imagen:    on,
		Recraft:   on,
		Fal:       on,
	}
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	priority := make([]string, 0, len(imagegen.AllProviders))
	for _, id := range imagegen.AllProviders {
		priority = append(priority, string(id))
	}
	return RegistryConfig{
		Priority:         priority,
		HealthTTL:        60 * time.Second,
		FailureThreshold: 1,
		ProbeTimeout:     10 * time.Second,
		WarmSchedule:     "@every 1m",
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   true,
		AdminRole: "admin",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "eventimage",
		SampleRate:   0.1,
	}
}
