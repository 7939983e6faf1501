package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"visibility-backend/internal/discovery"
	"visibility-backend/internal/events"
	"visibility-backend/internal/extract"
	"visibility-backend/internal/notify"
	"visibility-backend/internal/shared/config"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:              "dev",
		ObjectStoreType:  "local",
		LocalStoreDir:    t.TempDir(),
		AnalyzerProvider: "openai",
		Extractor:        "llm",
		MaxPrompts:       5,
		MaxCompetitors:   5,
		RunTimeout:       time.Minute,
		ScrapeTimeout:    time.Second,
		ScrapeCacheTTL:   time.Minute,
		AnalysisQuota:    3,
		LogLevel:         "error",
	}
}

func TestBuildDevUsesMemoryAndStaticProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	app, err := Build(context.Background(), devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.DB != nil {
		t.Fatalf("expected in-memory repositories without DATABASE_URL")
	}
	if _, ok := app.Notifier.(notify.Noop); !ok {
		t.Fatalf("expected noop notifier, got %T", app.Notifier)
	}
	if len(app.AnalysisService.DefaultProviders) != 0 {
		t.Fatalf("expected no default providers without DEFAULT_PROVIDERS, got %v", app.AnalysisService.DefaultProviders)
	}
	if ok, _ := app.Registry.Available("static"); !ok {
		t.Fatalf("expected static provider in dev registry, got %v", app.Registry.IDs())
	}
	// The analyzer provider has no key, so extraction and prompts fall back.
	if _, ok := app.AnalysisService.Orchestrator.Extractor.(extract.Heuristic); !ok {
		t.Fatalf("expected heuristic extractor, got %T", app.AnalysisService.Orchestrator.Extractor)
	}
	if _, ok := app.AnalysisService.Orchestrator.Prompts.(discovery.Templates); !ok {
		t.Fatalf("expected template prompts, got %T", app.AnalysisService.Orchestrator.Prompts)
	}

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected providers to be public, got %d", resp.Code)
	}
}

func TestBuildProductionRequiresDatabase(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	cfg.JWTSecret = "secret"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL in production")
	}
}

func TestBuildS3RequiresBucket(t *testing.T) {
	cfg := devConfig(t)
	cfg.ObjectStoreType = "s3"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for s3 store without bucket")
	}
}

func analyzeAsGuest(t *testing.T, app *App, body string) []events.Event {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", "guest-1")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected stream, got %d: %s", resp.Code, resp.Body.String())
	}

	dec := events.NewDecoder(resp.Body)
	var out []events.Event
	for {
		ev, err := dec.Next()
		if err != nil {
			return out
		}
		out = append(out, ev)
	}
}

func TestAnalyzeWithoutProvidersIsSetupErrorUnlessDefaultsConfigured(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	body := `{"company":{"name":"Acme"},"prompts":["best crm"]}`

	app, err := Build(context.Background(), devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	evs := analyzeAsGuest(t, app, body)
	if len(evs) != 1 {
		t.Fatalf("expected a single error event, got %d", len(evs))
	}
	if e, ok := evs[0].Data.(events.Error); !ok || e.Code != "NO_PROVIDERS" {
		t.Fatalf("expected NO_PROVIDERS error, got %+v", evs[0])
	}

	cfg := devConfig(t)
	cfg.DefaultProviders = []string{"static"}
	app, err = Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	evs = analyzeAsGuest(t, app, body)
	if len(evs) == 0 {
		t.Fatalf("expected events")
	}
	if _, ok := evs[len(evs)-1].Data.(events.Complete); !ok {
		t.Fatalf("expected complete with configured defaults, got %+v", evs[len(evs)-1])
	}
}
