// =============================================================================
// eventimage 主入口
// =============================================================================
// 活动图片生成服务: HTTP API、健康检查、Prometheus 指标、数据库迁移
//
// 使用方法:
//
//	eventimage serve                         # 启动服务
//	eventimage serve --config config.yaml    # 指定配置文件
//	eventimage providers                     # 探测已配置供应商
//	eventimage migrate up                    # 运行数据库迁移
//	eventimage migrate status                # 查看迁移状态
//	eventimage health                        # 健康检查
//	eventimage version                       # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/config"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalOptions 所有子命令共享的持久参数
type globalOptions struct {
	configPath string
	envFiles   []string
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	loader := config.NewLoader().
		WithEnvFile(o.envFiles...).
		WithValidator((*config.Config).Validate)
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	return loader.Load()
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "eventimage",
		Short: "Event image generation service",
		Long: `eventimage selects among the configured image generation providers,
validates and prices each request before any network call, and serves the
result over an HTTP JSON API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(versionText())
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"},
		"dotenv files layered under the process environment (first wins)")

	root.AddCommand(
		newServeCmd(opts),
		newProvidersCmd(opts),
		newMigrateCmd(opts),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP API and the metrics listener.

The settings database and Redis are optional: without the database profile
endpoints answer 503 and generation uses capability defaults; without Redis
provider health is cached per instance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting eventimage",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		_ = srv.Shutdown()
		return err
	}
	if err := srv.WaitForShutdown(ctx); err != nil {
		return err
	}
	logger.Info("eventimage stopped")
	return nil
}

// =============================================================================
// 🔌 providers 命令
// =============================================================================

func newProvidersCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Probe every configured image provider and print its health",
		Long: `Build the provider registry from configuration and probe each configured
provider once. Exits non-zero when a configured provider is unhealthy, which
makes it usable as a pre-deploy credential check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			registry := imagegen.NewRegistry(cfg.RegistryConfig(), zap.NewNop())
			if n := printProviderHealth(cmd.OutOrStdout(), registry.CheckHealthAll(ctx)); n > 0 {
				return fmt.Errorf("%d configured provider(s) unhealthy", n)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall probe timeout")
	return cmd
}

// printProviderHealth 输出健康表, 返回已配置但不健康的供应商数
func printProviderHealth(out io.Writer, report map[imagegen.ProviderID]imagegen.HealthStatus) int {
	ids := make([]imagegen.ProviderID, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCONFIGURED\tHEALTHY\tLATENCY\tERROR")
	unhealthy := 0
	for _, id := range ids {
		st := report[id]
		if st.Available && !st.Healthy {
			unhealthy++
		}
		latency := "-"
		if st.Latency > 0 {
			latency = st.Latency.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n", id, st.Available, st.Healthy, latency, st.LastError)
	}
	_ = tw.Flush()
	return unhealthy
}

// =============================================================================
// 🏥 health / version 命令
// =============================================================================

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/healthz", nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionText())
		},
	}
}

func versionText() string {
	return fmt.Sprintf("eventimage %s\n  Build Time: %s\n  Git Commit: %s\n", Version, BuildTime, GitCommit)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "eventimage"))
}
