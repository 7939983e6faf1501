package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseRegistryFile(t *testing.T) {
	data := []byte(`
providers:
  - id: openai
    kind: openai
    model: gpt-4o-mini
    apiKeyEnv: OPENAI_API_KEY
    timeout: 45s
    maxConcurrent: 2
    requestsPerMinute: 30
    webSearch: true
  - id: demo
    kind: static
    entities: [Acme, Zenith]
    delay: 10ms
`)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(f.Providers))
	}
	got := f.Providers[0]
	if got.Timeout != 45*time.Second || got.MaxConcurrent != 2 || got.RequestsPerMinute != 30 || !got.WebSearch {
		t.Fatalf("unexpected entry %+v", got)
	}
	if f.Providers[1].Delay != 10*time.Millisecond {
		t.Fatalf("unexpected delay %v", f.Providers[1].Delay)
	}
}

func TestParseRejectsUnknownKind(t *testing.T) {
	if _, err := Parse([]byte("providers:\n  - id: x\n    kind: carrier-pigeon\n")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := Parse([]byte("providers: []\n")); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestBuildMarksMissingCredentialsUnavailable(t *testing.T) {
	f := File{Providers: []Entry{
		{ID: "openai", Kind: KindOpenAI, Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
		{ID: "anthropic", Kind: KindAnthropic, Model: "claude", APIKeyEnv: "ANTHROPIC_API_KEY"},
		{ID: "static", Kind: KindStatic, Entities: []string{"Acme"}},
	}}
	reg, err := Build(f, Options{Getenv: envMap(map[string]string{"ANTHROPIC_API_KEY": "k"})})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ok, reason := reg.Available("openai"); ok || reason != "OPENAI_API_KEY not set" {
		t.Fatalf("expected openai unavailable, got %v %q", ok, reason)
	}
	if ok, _ := reg.Available("anthropic"); !ok {
		t.Fatalf("expected anthropic available")
	}
	if ok, _ := reg.Available("static"); !ok {
		t.Fatalf("expected static available")
	}
	if ids := reg.IDs(); len(ids) != 3 || ids[0] != "openai" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestFromEnvListsConfiguredVendors(t *testing.T) {
	f := FromEnv(Options{Getenv: envMap(map[string]string{
		"OPENAI_API_KEY":     "k",
		"OPENAI_MODEL":       "gpt-4.1",
		"PERPLEXITY_API_KEY": "p",
	})}, true)
	if len(f.Providers) != 3 {
		t.Fatalf("expected openai, perplexity, static; got %+v", f.Providers)
	}
	if f.Providers[0].Model != "gpt-4.1" {
		t.Fatalf("expected model override, got %q", f.Providers[0].Model)
	}
	if f.Providers[1].BaseURL == "" {
		t.Fatalf("expected perplexity base url")
	}
	if f.Providers[2].Kind != KindStatic || len(f.Providers[2].Entities) == 0 {
		t.Fatalf("expected static entry with entities")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  - id: demo\n    kind: static\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := Load(path, false, Options{Getenv: envMap(nil)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := reg.Lookup("demo"); !ok {
		t.Fatalf("expected demo provider")
	}
}
