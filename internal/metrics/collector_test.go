package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("eventimage", reg, zap.NewNop()), reg
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/images/generate", 200, 2*time.Second, 4096)
	c.RecordHTTPRequest("POST", "/api/v1/images/generate", 200, time.Second, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/images/generate", 422, 10*time.Millisecond, 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/images/generate", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/images/generate", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_RecordGeneration(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordGeneration("flux", "ok", 2, 0.062914)
	c.RecordGeneration("flux", "PROVIDER_RATE_LIMIT", 0, 0)
	c.RecordGeneration("", "INVALID_REQUEST", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("flux", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("flux", "PROVIDER_RATE_LIMIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("none", "INVALID_REQUEST")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.imagesTotal.WithLabelValues("flux")))
	assert.InDelta(t, 0.062914, testutil.ToFloat64(c.generationCost.WithLabelValues("flux")), 1e-9)
	// 失败不计成本
	assert.Equal(t, 1, testutil.CollectAndCount(c.generationCost))
}

func TestCollector_CacheAndDB(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCacheHit("provider_health")
	c.RecordCacheHit("provider_health")
	c.RecordCacheMiss("provider_health")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("provider_health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("provider_health")))

	c.RecordDBConnections("postgres", 10, 4, 6)
	c.RecordDBConnections("postgres", 8, 5, 3)
	assert.Equal(t, 8.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsInUse.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 64)
			c.RecordGeneration("fal", "ok", 1, 0.025)
			c.RecordRateLimited("/api/v1/images/generate")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("fal", "ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("/api/v1/images/generate")))
}

func TestCollector_RegistersOnGivenRegistry(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordGeneration("openai", "ok", 1, 0.042)

	expected := `
# HELP eventimage_generation_images_total Images returned by successful generations
# TYPE eventimage_generation_images_total counter
eventimage_generation_images_total{provider="openai"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventimage_generation_images_total"))

	// 同一 registry 重复注册会 panic
	assert.Panics(t, func() { NewCollector("eventimage", reg, zap.NewNop()) })
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 302: "3xx", 429: "4xx", 503: "5xx", 0: "unknown"} {
		assert.Equal(t, want, statusClass(code))
	}
}
