package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"visibility-backend/internal/analysis"
	"visibility-backend/internal/discovery"
	"visibility-backend/internal/extract"
	"visibility-backend/internal/notify"
	"visibility-backend/internal/providers"
	"visibility-backend/internal/providers/catalog"
	"visibility-backend/internal/scrape"
	"visibility-backend/internal/shared/auth"
	"visibility-backend/internal/shared/config"
	"visibility-backend/internal/shared/server"
	"visibility-backend/internal/shared/storage/db"
	"visibility-backend/internal/shared/storage/object"
	localstore "visibility-backend/internal/shared/storage/object/local"
	s3store "visibility-backend/internal/shared/storage/object/s3"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/usage"
)

const scrapeCacheEntries = 1000

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	Registry        *providers.Registry
	Notifier        notify.Notifier
	Scraper         *scrape.Cached
	AnalysisRepo    analysis.Repo
	UsageService    *usage.Service
	AnalysisService *analysis.Service
	AnalysisHandler *analysis.Handler
	UsageHandler    *usage.Handler
	Verifier        *auth.Verifier
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	telemetry.SetLevel(cfg.LogLevel)

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := catalog.Load(cfg.ProvidersFile, cfg.IsDevLike(), catalog.Options{})
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(registry.IDs()) == 0 {
		telemetry.Warn("bootstrap.no_providers", map[string]any{"env": cfg.Env})
	}

	notifier, err := notify.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		if !cfg.IsDevLike() {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		log.Printf("bootstrap: nats connect failed; notifications disabled: %v", err)
		notifier = notify.Noop{}
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.Env == "production")
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Registry: registry,
		Notifier: notifier,
		Verifier: verifier,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Verifier:        app.Verifier,
		AnalysisHandler: app.AnalysisHandler,
		UsageHandler:    app.UsageHandler,
	})

	return app, nil
}

// Close releases connections held by the app.
func (a *App) Close() error {
	var errs []error
	if a.Scraper != nil {
		a.Scraper.Close()
	}
	if a.Notifier != nil {
		errs = append(errs, a.Notifier.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "none":
		return nil, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) error {
	cfg := app.Config
	quota := usage.Quota{Limit: cfg.AnalysisQuota}

	var (
		analysisRepo analysis.Repo
		usageSvc     *usage.Service
	)
	if app.DB != nil {
		analysisRepo = &analysis.PGRepo{DB: app.DB}
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB, quota))
	} else {
		analysisRepo = analysis.NewMemoryRepo()
		usageSvc = usage.NewService(quota)
	}

	scraper, err := scrape.NewCached(scrape.NewHTTPScraper(cfg.ScrapeTimeout), scrapeCacheEntries, cfg.ScrapeCacheTTL)
	if err != nil {
		return fmt.Errorf("build scrape cache: %w", err)
	}
	app.Scraper = scraper

	orch := &analysis.Orchestrator{
		Registry:       app.Registry,
		Extractor:      buildExtractor(cfg, app.Registry),
		Scraper:        scraper,
		MaxPrompts:     cfg.MaxPrompts,
		MaxCompetitors: cfg.MaxCompetitors,
	}
	orch.Competitors, orch.Prompts = buildDiscovery(cfg, app.Registry)

	defaults := cfg.DefaultProviders

	svc := &analysis.Service{
		Orchestrator:     orch,
		Repo:             analysisRepo,
		Usage:            usageSvc,
		Store:            app.Store,
		Notifier:         app.Notifier,
		DefaultProviders: defaults,
		RunTimeout:       cfg.RunTimeout,
	}

	app.AnalysisRepo = analysisRepo
	app.UsageService = usageSvc
	app.AnalysisService = svc
	app.AnalysisHandler = analysis.NewHandler(svc, app.Registry)
	app.UsageHandler = usage.NewHandler(usageSvc)

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":               cfg.Env,
		"providers":         app.Registry.IDs(),
		"default_providers": defaults,
		"extractor":         cfg.Extractor,
		"analyzer":          cfg.AnalyzerProvider,
		"database":          app.DB != nil,
		"object_store":      cfg.ObjectStoreType,
	})
	return nil
}

// analyzerReady reports whether the analyzer provider can serve extraction and discovery.
func analyzerReady(cfg config.Config, reg *providers.Registry) bool {
	if strings.TrimSpace(cfg.AnalyzerProvider) == "" {
		return false
	}
	ok, _ := reg.Available(cfg.AnalyzerProvider)
	return ok
}

func buildExtractor(cfg config.Config, reg *providers.Registry) extract.Extractor {
	if cfg.Extractor != "llm" {
		return extract.Heuristic{}
	}
	if !analyzerReady(cfg, reg) {
		log.Printf("bootstrap: EXTRACTOR=llm but analyzer provider %q is unavailable; using heuristic extraction", cfg.AnalyzerProvider)
		return extract.Heuristic{}
	}
	return extract.LLM{Caller: reg, ProviderID: cfg.AnalyzerProvider, Fallback: extract.Heuristic{}}
}

func buildDiscovery(cfg config.Config, reg *providers.Registry) ([]discovery.CompetitorFinder, discovery.PromptGenerator) {
	finders := []discovery.CompetitorFinder{discovery.MetadataCompetitors{}}
	if !analyzerReady(cfg, reg) {
		return finders, discovery.Templates{}
	}
	finders = append(finders, discovery.LLMCompetitors{Caller: reg, ProviderID: cfg.AnalyzerProvider})
	return finders, discovery.LLMPrompts{Caller: reg, ProviderID: cfg.AnalyzerProvider, Fallback: discovery.Templates{}}
}
