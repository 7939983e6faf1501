package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port             string
	CORSAllowOrigin  []string
	ObjectStoreType  string
	LocalStoreDir    string
	AWSRegion        string
	S3Bucket         string
	S3Prefix         string
	SSEKMSKeyID      string
	DatabaseURL      string
	Env              string
	JWTSecret        string
	ProvidersFile    string
	DefaultProviders []string
	AnalyzerProvider string
	Extractor        string
	MaxPrompts       int
	MaxCompetitors   int
	RunTimeout       time.Duration
	ScrapeTimeout    time.Duration
	ScrapeCacheTTL   time.Duration
	NATSURL          string
	NATSSubject      string
	RateLimitRPS     float64
	RateLimitBurst   int
	AnalysisQuota    int
	LogLevel         string
	OTelTraceStdout  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:             getEnv("PORT", "8080"),
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:    getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Prefix:         getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:      getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:      dbURL,
		Env:              env,
		JWTSecret:        getEnv("JWT_SECRET", ""),
		ProvidersFile:    getEnv("PROVIDERS_FILE", ""),
		DefaultProviders: splitAndTrim(getEnv("DEFAULT_PROVIDERS", "")),
		AnalyzerProvider: getEnv("ANALYZER_PROVIDER", "openai"),
		Extractor:        normalizeExtractor(getEnv("EXTRACTOR", "heuristic")),
		MaxPrompts:       getEnvInt("MAX_PROMPTS", 10),
		MaxCompetitors:   getEnvInt("MAX_COMPETITORS", 10),
		RunTimeout:       getEnvDuration("RUN_TIMEOUT", 10*time.Minute),
		ScrapeTimeout:    getEnvDuration("SCRAPE_TIMEOUT", 15*time.Second),
		ScrapeCacheTTL:   getEnvDuration("SCRAPE_CACHE_TTL", time.Hour),
		NATSURL:          getEnv("NATS_URL", ""),
		NATSSubject:      getEnv("NATS_SUBJECT", "visibility.analysis.completed"),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 3),
		AnalysisQuota:    getEnvInt("ANALYSIS_QUOTA", 10),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		OTelTraceStdout:  getEnvBool("OTEL_TRACES_STDOUT", false),
	}
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "none", "off":
		return "none"
	default:
		return "local"
	}
}

func normalizeExtractor(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "llm":
		return "llm"
	default:
		return "heuristic"
	}
}
