// Package catalog builds a providers.Registry from a YAML file or from the environment.
package catalog

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/providers/anthropic"
	"visibility-backend/internal/providers/openai"
	"visibility-backend/internal/providers/static"
)

// Provider kinds.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindStatic    = "static"
)

// Entry is one provider in the registry file.
type Entry struct {
	ID                string        `yaml:"id"`
	Kind              string        `yaml:"kind"`
	Model             string        `yaml:"model"`
	SearchModel       string        `yaml:"searchModel"`
	BaseURL           string        `yaml:"baseURL"`
	APIKeyEnv         string        `yaml:"apiKeyEnv"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	WebSearch         bool          `yaml:"webSearch"`
	Entities          []string      `yaml:"entities"`
	Delay             time.Duration `yaml:"delay"`
}

// File is the registry file shape.
type File struct {
	Providers []Entry `yaml:"providers"`
}

// Parse decodes a registry file.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse providers file: %w", err)
	}
	if len(f.Providers) == 0 {
		return File{}, fmt.Errorf("providers file lists no providers")
	}
	for i, e := range f.Providers {
		if strings.TrimSpace(e.ID) == "" {
			return File{}, fmt.Errorf("providers[%d]: id is required", i)
		}
		switch e.Kind {
		case KindOpenAI, KindAnthropic, KindStatic:
		case "":
			return File{}, fmt.Errorf("providers[%d] %s: kind is required", i, e.ID)
		default:
			return File{}, fmt.Errorf("providers[%d] %s: unknown kind %q", i, e.ID, e.Kind)
		}
	}
	return f, nil
}

// LoadFile reads and parses a registry file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read providers file: %w", err)
	}
	return Parse(data)
}

// Options tune registry construction.
type Options struct {
	Getenv     func(string) string
	HTTPClient *http.Client
}

func (o Options) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}

// Build constructs the registry. Entries whose credentials are missing or whose client
// cannot be built stay registered but unavailable, so their tasks are reported as skipped.
func Build(f File, opts Options) (*providers.Registry, error) {
	list := make([]providers.Provider, 0, len(f.Providers))
	for _, e := range f.Providers {
		list = append(list, buildOne(e, opts))
	}
	return providers.NewRegistry(list...)
}

func buildOne(e Entry, opts Options) providers.Provider {
	p := providers.Provider{
		ID:        strings.TrimSpace(e.ID),
		Kind:      e.Kind,
		Model:     e.Model,
		WebSearch: e.WebSearch,
		Policy: providers.Policy{
			Timeout:           e.Timeout,
			MaxConcurrent:     e.MaxConcurrent,
			RequestsPerMinute: e.RequestsPerMinute,
		},
	}
	if e.Kind == KindStatic {
		p.Generator = static.New(p.ID, e.Entities, e.Delay)
		if p.Model == "" {
			p.Model = "static"
		}
		return p
	}

	key := ""
	if e.APIKeyEnv != "" {
		key = strings.TrimSpace(opts.getenv(e.APIKeyEnv))
	}
	if key == "" {
		p.Unavailable = fmt.Sprintf("%s not set", orDefault(e.APIKeyEnv, "api key"))
		return p
	}

	var (
		gen providers.Generator
		err error
	)
	switch e.Kind {
	case KindOpenAI:
		gen, err = openai.NewClient(openai.Config{
			APIKey:      key,
			Model:       e.Model,
			BaseURL:     e.BaseURL,
			SearchModel: e.SearchModel,
			HTTPClient:  opts.HTTPClient,
		})
	case KindAnthropic:
		gen, err = anthropic.NewClient(anthropic.Config{
			APIKey:     key,
			Model:      e.Model,
			BaseURL:    e.BaseURL,
			HTTPClient: opts.HTTPClient,
		})
	}
	if err != nil {
		p.Unavailable = err.Error()
		return p
	}
	p.Generator = gen
	return p
}

// Known vendors registered from the environment when their key variable is set.
var knownVendors = []Entry{
	{ID: "openai", Kind: KindOpenAI, Model: "gpt-4o-mini", SearchModel: "gpt-4o-search-preview", APIKeyEnv: "OPENAI_API_KEY", WebSearch: true},
	{ID: "anthropic", Kind: KindAnthropic, Model: "claude-3-5-haiku-latest", APIKeyEnv: "ANTHROPIC_API_KEY", WebSearch: true},
	{ID: "perplexity", Kind: KindOpenAI, Model: "sonar", BaseURL: "https://api.perplexity.ai", APIKeyEnv: "PERPLEXITY_API_KEY"},
	{ID: "google", Kind: KindOpenAI, Model: "gemini-2.0-flash", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", APIKeyEnv: "GEMINI_API_KEY"},
	{ID: "deepseek", Kind: KindOpenAI, Model: "deepseek-chat", BaseURL: "https://api.deepseek.com", APIKeyEnv: "DEEPSEEK_API_KEY"},
	{ID: "xai", Kind: KindOpenAI, Model: "grok-3-mini", BaseURL: "https://api.x.ai/v1", APIKeyEnv: "XAI_API_KEY"},
}

var defaultStaticEntities = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli"}

// FromEnv derives a registry file from the environment. A vendor is listed when its key
// variable is set; the static provider is listed when includeStatic is true.
// <VENDOR>_MODEL overrides the default model.
func FromEnv(opts Options, includeStatic bool) File {
	var f File
	for _, v := range knownVendors {
		if strings.TrimSpace(opts.getenv(v.APIKeyEnv)) == "" {
			continue
		}
		if model := strings.TrimSpace(opts.getenv(strings.ToUpper(v.ID) + "_MODEL")); model != "" {
			v.Model = model
		}
		f.Providers = append(f.Providers, v)
	}
	if includeStatic {
		entities := defaultStaticEntities
		if raw := strings.TrimSpace(opts.getenv("STATIC_PROVIDER_ENTITIES")); raw != "" {
			entities = splitList(raw)
		}
		f.Providers = append(f.Providers, Entry{
			ID:       "static",
			Kind:     KindStatic,
			Entities: entities,
			Delay:    250 * time.Millisecond,
		})
	}
	return f
}

// Load builds the registry from path when set, otherwise from the environment.
func Load(path string, includeStatic bool, opts Options) (*providers.Registry, error) {
	if strings.TrimSpace(path) != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return Build(f, opts)
	}
	return Build(FromEnv(opts, includeStatic), opts)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
