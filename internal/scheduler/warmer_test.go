package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

type fakeProber struct {
	calls  atomic.Int32
	report map[imagegen.ProviderID]imagegen.HealthStatus
	// 记录探测时 context 是否带截止时间
	hadDeadline atomic.Bool
}

func (f *fakeProber) CheckHealthAll(ctx context.Context) map[imagegen.ProviderID]imagegen.HealthStatus {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.hadDeadline.Store(true)
	}
	return f.report
}

func newProber() *fakeProber {
	return &fakeProber{report: map[imagegen.ProviderID]imagegen.HealthStatus{
		imagegen.ProviderOpenAI: {Provider: imagegen.ProviderOpenAI, Available: true, Healthy: true},
		imagegen.ProviderFlux:   {Provider: imagegen.ProviderFlux, Available: true, LastError: "HTTP 503", ConsecutiveFailures: 2},
		imagegen.ProviderFal:    {Provider: imagegen.ProviderFal},
	}}
}

func TestHealthWarmer_RunOnce(t *testing.T) {
	p := newProber()
	w := NewHealthWarmer(p, "@every 1m", time.Second, zap.NewNop())

	assert.Equal(t, 1, w.RunOnce(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.True(t, p.hadDeadline.Load())
}

func TestHealthWarmer_RunOnceCanceled(t *testing.T) {
	p := newProber()
	w := NewHealthWarmer(p, "@every 1m", 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, w.RunOnce(ctx))
	assert.Zero(t, p.calls.Load())
}

func TestHealthWarmer_StartRunsImmediatelyAndOnSchedule(t *testing.T) {
	p := newProber()
	w := NewHealthWarmer(p, "@every 1s", time.Second, zap.NewNop())

	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(w.Stop)

	assert.False(t, w.NextRun().IsZero())
	// 立即一轮 + 至少一次定时触发
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestHealthWarmer_EmptyScheduleDisabled(t *testing.T) {
	p := newProber()
	w := NewHealthWarmer(p, "", time.Second, zap.NewNop())

	require.NoError(t, w.Start(t.Context()))
	assert.True(t, w.NextRun().IsZero())
	w.Stop()
	assert.Zero(t, p.calls.Load())
}

func TestHealthWarmer_InvalidSchedule(t *testing.T) {
	w := NewHealthWarmer(newProber(), "every minute", time.Second, zap.NewNop())
	assert.ErrorContains(t, w.Start(t.Context()), "invalid warm schedule")
}

func TestHealthWarmer_StopsWithContext(t *testing.T) {
	p := newProber()
	w := NewHealthWarmer(p, "@every 1m", time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return w.NextRun().IsZero() }, time.Second, 10*time.Millisecond)
	w.Stop()
}
