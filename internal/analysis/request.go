package analysis

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"visibility-backend/internal/discovery"
	"visibility-backend/internal/visibility"
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Company      visibility.Company      `json:"company"`
	Prompts      []string                `json:"prompts,omitempty" validate:"max=50,dive,max=1000"`
	Competitors  []visibility.Competitor `json:"competitors,omitempty" validate:"max=50,dive"`
	Providers    []string                `json:"providers,omitempty" validate:"max=20,dive,max=64"`
	UseWebSearch bool                    `json:"useWebSearch,omitempty"`
}

// FieldError names one invalid request field.
type FieldError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Issue)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request shape. Provider selection is checked by the orchestrator.
func (r AnalyzeRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Issue: fe.Tag()})
	}
	return out
}

// normalized trims the request and removes duplicate prompts, competitors and providers.
// Competitors matching the brand are dropped.
func (r AnalyzeRequest) normalized(maxPrompts, maxCompetitors int) AnalyzeRequest {
	out := r
	out.Company.Name = strings.TrimSpace(r.Company.Name)
	out.Company.URL = strings.TrimSpace(r.Company.URL)
	out.Company.Industry = strings.TrimSpace(r.Company.Industry)

	out.Prompts = nil
	seen := make(map[string]struct{}, len(r.Prompts))
	for _, p := range r.Prompts {
		p = strings.TrimSpace(p)
		key := discovery.NormalizePrompt(p)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Prompts = append(out.Prompts, p)
		if maxPrompts > 0 && len(out.Prompts) == maxPrompts {
			break
		}
	}

	out.Competitors = dedupeCompetitors(out.Company.Name, r.Competitors, maxCompetitors)

	out.Providers = nil
	seenProviders := make(map[string]struct{}, len(r.Providers))
	for _, id := range r.Providers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seenProviders[id]; dup {
			continue
		}
		seenProviders[id] = struct{}{}
		out.Providers = append(out.Providers, id)
	}
	return out
}

func dedupeCompetitors(brand string, in []visibility.Competitor, limit int) []visibility.Competitor {
	var out []visibility.Competitor
	seen := map[string]struct{}{visibility.NormalizeName(brand): {}}
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		c.URL = strings.TrimSpace(c.URL)
		key := visibility.NormalizeName(c.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
