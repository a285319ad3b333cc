package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

// Prober is the part of *imagegen.Registry the warmer drives.
type Prober interface {
	CheckHealthAll(ctx context.Context) map[imagegen.ProviderID]imagegen.HealthStatus
}

// HealthWarmer refreshes provider health on a cron schedule.
type HealthWarmer struct {
	prober   Prober
	schedule string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

// NewHealthWarmer 创建预热器. timeout 限制单轮探测的总时长.
func NewHealthWarmer(prober Prober, schedule string, timeout time.Duration, logger *zap.Logger) *HealthWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthWarmer{
		prober:   prober,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "health_warmer")),
		// 上一轮未结束时跳过本轮
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start validates the schedule, runs one warm-up round immediately and then
// schedules the rest. An empty schedule disables the warmer. The warmer stops
// when ctx is done or Stop is called.
func (w *HealthWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.schedule == "" {
		w.logger.Info("warm schedule not configured, provider health refreshed on demand")
		return nil
	}
	if w.running {
		return nil
	}
	if _, err := cron.ParseStandard(w.schedule); err != nil {
		return fmt.Errorf("invalid warm schedule %q: %w", w.schedule, err)
	}

	id, err := w.cron.AddFunc(w.schedule, func() { w.RunOnce(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule health warm-up: %w", err)
	}
	w.entry = id
	w.cron.Start()
	w.running = true

	go w.RunOnce(ctx)
	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	w.logger.Info("health warmer started", zap.String("schedule", w.schedule))
	return nil
}

// RunOnce probes every configured provider and logs the unhealthy ones.
func (w *HealthWarmer) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	healthy := 0
	for id, st := range w.prober.CheckHealthAll(ctx) {
		switch {
		case !st.Available:
		case st.Healthy:
			healthy++
		default:
			w.logger.Warn("provider unhealthy",
				zap.String("provider", string(id)),
				zap.String("error", st.LastError),
				zap.Int("consecutive_failures", st.ConsecutiveFailures))
		}
	}
	w.logger.Debug("health warm-up completed",
		zap.Int("healthy", healthy),
		zap.Duration("duration", time.Since(start)))
	return healthy
}

// Stop 停止调度并等待进行中的一轮结束. 重复调用安全.
func (w *HealthWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	w.logger.Info("health warmer stopped")
}

// NextRun returns the next scheduled warm-up, or the zero time when stopped.
func (w *HealthWarmer) NextRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return time.Time{}
	}
	return w.cron.Entry(w.entry).Next
}
