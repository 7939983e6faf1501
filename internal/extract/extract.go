// Package extract turns one provider's free-text answer into a visibility.TaskResult.
package extract

import (
	"context"
	"errors"
	"strings"

	"visibility-backend/internal/visibility"
)

var (
	ErrEmptyText = errors.New("no text to extract from")
	ErrMalformed = errors.New("malformed extraction output")
)

// Target names the entities an answer is scanned for.
type Target struct {
	Brand       string
	Competitors []string
}

// Names returns the brand followed by competitors, without blanks or duplicates.
func (t Target) Names() []string {
	seen := make(map[string]struct{}, len(t.Competitors)+1)
	out := make([]string, 0, len(t.Competitors)+1)
	for _, n := range append([]string{t.Brand}, t.Competitors...) {
		n = strings.TrimSpace(n)
		key := visibility.NormalizeName(n)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Extractor is the Response Extractor capability.
type Extractor interface {
	Extract(ctx context.Context, text string, target Target) (visibility.TaskResult, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string, target Target) (visibility.TaskResult, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, text string, target Target) (visibility.TaskResult, error) {
	return f(ctx, text, target)
}
