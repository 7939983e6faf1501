package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysisStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_analysis_started_total",
		Help: "Total analysis runs started",
	})

	analysisFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_analysis_finished_total",
		Help: "Total analysis runs finished by outcome",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_analysis_duration_seconds",
		Help:    "Analysis run duration in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	taskTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_task_total",
		Help: "Analysis tasks by provider and terminal status",
	}, []string{"provider", "status"})

	providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visibility_provider_call_duration_seconds",
		Help:    "Provider generate call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider", "result"})

	scrapeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_scrape_cache_total",
		Help: "Website scrape cache lookups by result",
	}, []string{"result"})
)

// Outcome labels for finished runs.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStartedTotal.Inc()
}

// ObserveAnalysisFinished records the outcome and duration of a run.
func ObserveAnalysisFinished(outcome string, elapsed time.Duration) {
	analysisFinishedTotal.WithLabelValues(outcome).Inc()
	if elapsed < 0 {
		elapsed = 0
	}
	analysisDuration.Observe(elapsed.Seconds())
}

// IncTask counts a task reaching a terminal status.
func IncTask(provider, status string) {
	taskTotal.WithLabelValues(provider, status).Inc()
}

// ObserveProviderCall records one provider call.
func ObserveProviderCall(provider string, elapsed time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	providerCallDuration.WithLabelValues(provider, result).Observe(elapsed.Seconds())
}

// ObserveScrapeCache records a scrape cache hit or miss.
func ObserveScrapeCache(hit bool) {
	if hit {
		scrapeCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	scrapeCacheTotal.WithLabelValues("miss").Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
