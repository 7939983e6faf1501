package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"visibility-backend/internal/visibility"
)

// Templates generates prompts from fixed phrasings. It needs no provider and is the
// fallback when the LLM generator cannot produce prompts.
type Templates struct{}

// GeneratePrompts implements PromptGenerator.
func (Templates) GeneratePrompts(ctx context.Context, in PromptInput, limit int, yield func(string) error) error {
	for i, p := range templatePrompts(in) {
		if limit > 0 && i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(p); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func templatePrompts(in PromptInput) []string {
	industry := industryOf(in.Company)
	category := industry
	if category == "" {
		category = "solutions like " + in.Company.Name
	}
	out := []string{
		fmt.Sprintf("What are the best %s options available today?", category),
		fmt.Sprintf("Which %s companies would you recommend for a growing business?", category),
		fmt.Sprintf("What are the top alternatives to %s?", in.Company.Name),
		fmt.Sprintf("Who are the market leaders in %s?", category),
		fmt.Sprintf("What should I consider when choosing a provider for %s?", category),
	}
	if len(in.Competitors) > 0 {
		names := strings.Join(visibility.CompetitorNames(in.Competitors), ", ")
		out = append(out, fmt.Sprintf("How does %s compare to %s?", in.Company.Name, names))
	}
	if m := in.Company.Metadata; m != nil {
		for _, kw := range m.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				out = append(out, fmt.Sprintf("What is the best tool for %s?", kw))
			}
		}
	}
	return out
}

// MetadataCompetitors yields competitors the scraping collaborator already found.
type MetadataCompetitors struct{}

// FindCompetitors implements CompetitorFinder.
func (MetadataCompetitors) FindCompetitors(ctx context.Context, company visibility.Company, limit int, yield func(visibility.Competitor) error) error {
	if company.Metadata == nil {
		return nil
	}
	for i, c := range company.Metadata.Competitors {
		if limit > 0 && i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
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

var (
	_ PromptGenerator  = Templates{}
	_ CompetitorFinder = MetadataCompetitors{}
)
