// Package discovery holds the upstream collaborators that fill in what a request leaves
// out: competitors for the brand and the prompts to ask each provider.
package discovery

import (
	"context"
	"errors"
	"strings"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/visibility"
)

// ErrStop may be returned by a yield callback to end generation early without error.
var ErrStop = errors.New("stop")

// Caller is the slice of providers.Registry the LLM-backed collaborators need.
type Caller interface {
	Generate(ctx context.Context, providerID string, req providers.Request) (providers.Response, error)
}

// CompetitorFinder names competitors for a company, one at a time.
type CompetitorFinder interface {
	FindCompetitors(ctx context.Context, company visibility.Company, limit int, yield func(visibility.Competitor) error) error
}

// PromptInput is what prompt generation knows about the run.
type PromptInput struct {
	Company     visibility.Company
	Competitors []visibility.Competitor
}

// PromptGenerator produces natural-language prompts, one at a time.
type PromptGenerator interface {
	GeneratePrompts(ctx context.Context, in PromptInput, limit int, yield func(string) error) error
}

// NormalizePrompt folds a prompt for duplicate detection.
func NormalizePrompt(p string) string {
	return strings.ToLower(strings.Join(strings.Fields(p), " "))
}

func industryOf(c visibility.Company) string {
	if s := strings.TrimSpace(c.Industry); s != "" {
		return s
	}
	if c.Metadata != nil {
		return strings.TrimSpace(c.Metadata.Industry)
	}
	return ""
}

func describe(c visibility.Company) string {
	var b strings.Builder
	b.WriteString("Company: ")
	b.WriteString(c.Name)
	if c.URL != "" {
		b.WriteString("\nWebsite: ")
		b.WriteString(c.URL)
	}
	if ind := industryOf(c); ind != "" {
		b.WriteString("\nIndustry: ")
		b.WriteString(ind)
	}
	if m := c.Metadata; m != nil {
		if m.Description != "" {
			b.WriteString("\nDescription: ")
			b.WriteString(m.Description)
		}
		if len(m.Keywords) > 0 {
			b.WriteString("\nKeywords: ")
			b.WriteString(strings.Join(m.Keywords, ", "))
		}
		if m.Summary != "" {
			b.WriteString("\nWebsite summary:\n")
			b.WriteString(truncate(m.Summary, 2000))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
