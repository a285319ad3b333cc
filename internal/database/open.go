package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config selects the SQL backend of the settings store.
type Config struct {
	// Driver 取值 postgres、mysql 或 sqlite
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`

	// SlowQueryThreshold 超过该耗时的语句记 warn 日志
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`

	Pool PoolConfig `yaml:"pool" json:"pool"`
}

// DefaultConfig 本地开发默认使用 sqlite 文件
func DefaultConfig() Config {
	return Config{
		Driver:             "sqlite",
		DSN:                "eventimage.db",
		SlowQueryThreshold: 200 * time.Millisecond,
		Pool:               DefaultPoolConfig(),
	}
}

// Dialector returns the gorm dialector for driver.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects with cfg and wraps the handle in a PoolManager.
func Open(cfg Config, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(logger, cfg.SlowQueryThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return NewPoolManager(db, cfg.Pool, logger)
}

// newGormLogger routes gorm's logs through zap's standard logger.
func newGormLogger(logger *zap.Logger, slow time.Duration) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.With(zap.String("component", "gorm"))),
		gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}
