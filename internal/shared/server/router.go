package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"visibility-backend/internal/analysis"
	"visibility-backend/internal/shared/config"
	"visibility-backend/internal/shared/metrics"
	"visibility-backend/internal/shared/server/middleware"
	"visibility-backend/internal/shared/server/respond"
	"visibility-backend/internal/usage"
)

const (
	serviceName   = "visibility-api"
	analyzeGroup  = "ANALYZE"
	analyzePath   = "/api/v1/analyze"
	healthPath    = "/api/v1/health"
	metricsPath   = "/metrics"
	providersPath = "/api/v1/providers"
)

// RouterDeps carries the handlers and collaborators the router mounts.
type RouterDeps struct {
	Config          config.Config
	Verifier        middleware.TokenVerifier
	AnalysisHandler *analysis.Handler
	UsageHandler    *usage.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)
	r.GET(metricsPath, metrics.Handler())

	rules := map[string]middleware.RateLimitRule{}
	if cfg.RateLimitRPS > 0 {
		rules[analyzeGroup] = middleware.RateLimitRule{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	}

	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Verifier, healthPath, providersPath),
		middleware.RateLimit(middleware.RateLimitConfig{Rules: rules, GroupFor: rateLimitGroup}),
	)
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	registerMeRoutes(api)
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
		if cfg.Env == "dev" {
			dev := api.Group("/dev")
			deps.UsageHandler.RegisterDevRoutes(dev)
		}
	}

	return r
}

// rateLimitGroup puts analysis starts in their own bucket; other routes are not limited.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == analyzePath {
		return analyzeGroup
	}
	return "NONE"
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
