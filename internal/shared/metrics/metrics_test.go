package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHandlerExposesVisibilityMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncAnalysisStarted()
	ObserveAnalysisFinished(OutcomeComplete, 2*time.Second)
	IncTask("openai", "completed")
	ObserveProviderCall("openai", time.Second, nil)
	ObserveProviderCall("openai", time.Second, context.DeadlineExceeded)
	ObserveProviderCall("openai", time.Second, errors.New("boom"))
	ObserveScrapeCache(true)

	r := gin.New()
	r.GET("/metrics", Handler())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"visibility_analysis_started_total",
		`visibility_analysis_finished_total{outcome="complete"}`,
		`visibility_task_total{provider="openai",status="completed"}`,
		`result="timeout"`,
		`result="error"`,
		`visibility_scrape_cache_total{result="hit"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}
