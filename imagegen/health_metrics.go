package imagegen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	imagegenProviderHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imagegen_provider_healthy",
			Help: "Image provider health status (1 healthy, 0 unhealthy).",
		},
		[]string{"provider_id"},
	)
	imagegenHealthCheckLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegen_provider_health_check_latency_ms",
			Help:    "Image provider health check latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"provider_id"},
	)
	imagegenHealthCheckFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_provider_health_check_failures_total",
			Help: "Total image provider health check failures.",
		},
		[]string{"provider_id"},
	)
)

func init() {
	prometheus.MustRegister(
		imagegenProviderHealthy,
		imagegenHealthCheckLatencyMs,
		imagegenHealthCheckFailuresTotal,
	)
}

func observeProviderHealthCheck(providerID ProviderID, healthy bool, latency time.Duration, err error) {
	id := string(providerID)
	if id == "" {
		id = "unknown"
	}
	if healthy {
		imagegenProviderHealthy.WithLabelValues(id).Set(1)
	} else {
		imagegenProviderHealthy.WithLabelValues(id).Set(0)
	}
	if latency > 0 {
		imagegenHealthCheckLatencyMs.WithLabelValues(id).Observe(float64(latency.Milliseconds()))
	}
	if err != nil {
		imagegenHealthCheckFailuresTotal.WithLabelValues(id).Inc()
	}
}
