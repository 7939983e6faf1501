package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/visibility"
)

// LLMCompetitors asks an analyzer provider for the company's direct competitors.
type LLMCompetitors struct {
	Caller     Caller
	ProviderID string
}

type competitorsOutput struct {
	Competitors []visibility.Competitor `json:"competitors"`
}

// FindCompetitors implements CompetitorFinder.
func (l LLMCompetitors) FindCompetitors(ctx context.Context, company visibility.Company, limit int, yield func(visibility.Competitor) error) error {
	if l.Caller == nil {
		return fmt.Errorf("competitor finder: no caller configured")
	}
	if limit <= 0 {
		limit = 10
	}
	prompt := describe(company) + fmt.Sprintf(
		"\n\nList up to %d direct competitors of this company that a buyer would compare it against. "+
			`Return JSON: {"competitors": [{"name": string, "url": string}]}. Use the official product or company name.`, limit)
	resp, err := l.Caller.Generate(ctx, l.ProviderID, providers.Request{
		Prompt: prompt,
		System: "You are a market research analyst.",
		JSON:   true,
	})
	if err != nil {
		return fmt.Errorf("competitor finder: %w", err)
	}
	var out competitorsOutput
	if err := decodeObject(resp.Text, &out); err != nil {
		return fmt.Errorf("competitor finder: %w", err)
	}
	for i, c := range out.Competitors {
		if i >= limit {
			break
		}
		c.Name = strings.TrimSpace(c.Name)
		c.URL = strings.TrimSpace(c.URL)
		if c.Name == "" {
			continue
		}
		if err := yield(c); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// LLMPrompts asks an analyzer provider for realistic buyer questions. When the provider
// fails before any prompt was yielded, Fallback takes over.
type LLMPrompts struct {
	Caller     Caller
	ProviderID string
	Fallback   PromptGenerator
}

type promptsOutput struct {
	Prompts []string `json:"prompts"`
}

// GeneratePrompts implements PromptGenerator.
func (l LLMPrompts) GeneratePrompts(ctx context.Context, in PromptInput, limit int, yield func(string) error) error {
	prompts, err := l.ask(ctx, in, limit)
	if err != nil {
		if ctx.Err() != nil || l.Fallback == nil {
			return err
		}
		telemetry.Warn("discovery.prompts_fallback", map[string]any{
			"provider": l.ProviderID,
			"error":    err,
		})
		return l.Fallback.GeneratePrompts(ctx, in, limit, yield)
	}
	for _, p := range prompts {
		if err := yield(p); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (l LLMPrompts) ask(ctx context.Context, in PromptInput, limit int) ([]string, error) {
	if l.Caller == nil {
		return nil, fmt.Errorf("prompt generator: no caller configured")
	}
	if limit <= 0 {
		limit = 10
	}
	var b strings.Builder
	b.WriteString(describe(in.Company))
	if len(in.Competitors) > 0 {
		b.WriteString("\nKnown competitors: ")
		b.WriteString(strings.Join(visibility.CompetitorNames(in.Competitors), ", "))
	}
	fmt.Fprintf(&b, "\n\nWrite %d distinct questions a potential customer might ask an AI assistant "+
		"when looking for products in this category. Do not name the company itself. "+
		`Return JSON: {"prompts": [string]}.`, limit)

	resp, err := l.Caller.Generate(ctx, l.ProviderID, providers.Request{
		Prompt: b.String(),
		System: "You write realistic search questions for market research.",
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt generator: %w", err)
	}
	var out promptsOutput
	if err := decodeObject(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("prompt generator: %w", err)
	}
	clean := make([]string, 0, len(out.Prompts))
	for _, p := range out.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
		if len(clean) == limit {
			break
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("prompt generator: no prompts returned")
	}
	return clean, nil
}

func decodeObject(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return errors.New("response has no JSON object")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ CompetitorFinder = LLMCompetitors{}
	_ PromptGenerator  = LLMPrompts{}
)
