package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/visibility"
)

// Caller is the slice of providers.Registry the LLM extractor needs.
type Caller interface {
	Generate(ctx context.Context, providerID string, req providers.Request) (providers.Response, error)
}

const extractionSystemPrompt = "You analyze answers written by AI assistants and report, as strict JSON, which companies they mention, in what rank, and with what tone."

// LLM asks an analyzer provider to extract the result as JSON. When the call or the
// output fails and Fallback is set, the fallback extractor's result is returned instead.
type LLM struct {
	Caller     Caller
	ProviderID string
	Fallback   Extractor
}

type llmMention struct {
	Name      string `json:"name"`
	Position  *int   `json:"position"`
	Sentiment string `json:"sentiment"`
}

type llmOutput struct {
	BrandMentioned bool         `json:"brandMentioned"`
	BrandPosition  *int         `json:"brandPosition"`
	Sentiment      string       `json:"sentiment"`
	Competitors    []llmMention `json:"competitors"`
}

// Extract implements Extractor.
func (l LLM) Extract(ctx context.Context, text string, target Target) (visibility.TaskResult, error) {
	if strings.TrimSpace(text) == "" {
		return visibility.TaskResult{}, ErrEmptyText
	}
	res, err := l.extract(ctx, text, target)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil || l.Fallback == nil {
		return visibility.TaskResult{}, err
	}
	telemetry.Warn("extract.llm_fallback", map[string]any{
		"provider": l.ProviderID,
		"error":    err,
	})
	return l.Fallback.Extract(ctx, text, target)
}

func (l LLM) extract(ctx context.Context, text string, target Target) (visibility.TaskResult, error) {
	if l.Caller == nil {
		return visibility.TaskResult{}, fmt.Errorf("llm extractor: no caller configured")
	}
	resp, err := l.Caller.Generate(ctx, l.ProviderID, providers.Request{
		Prompt: buildExtractionPrompt(text, target),
		System: extractionSystemPrompt,
		JSON:   true,
	})
	if err != nil {
		return visibility.TaskResult{}, fmt.Errorf("llm extractor: %w", err)
	}
	return parseExtraction(resp.Text, text, target)
}

func buildExtractionPrompt(text string, target Target) string {
	var b strings.Builder
	b.WriteString("Brand: ")
	b.WriteString(target.Brand)
	b.WriteString("\nCompetitors: ")
	b.WriteString(strings.Join(target.Competitors, ", "))
	b.WriteString("\n\nReturn a JSON object with this shape:\n")
	b.WriteString(`{"brandMentioned": bool, "brandPosition": int|null, "sentiment": "positive"|"neutral"|"negative", "competitors": [{"name": string, "position": int|null, "sentiment": "positive"|"neutral"|"negative"}]}`)
	b.WriteString("\nPositions are 1-based ranks in the answer's recommendation order. ")
	b.WriteString("List only competitors from the list above that the answer mentions. ")
	b.WriteString("Sentiment at the top level is the answer's tone toward the brand.\n\nAnswer:\n")
	b.WriteString(text)
	return b.String()
}

func parseExtraction(raw, text string, target Target) (visibility.TaskResult, error) {
	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return visibility.TaskResult{}, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	var out llmOutput
	if err := json.Unmarshal([]byte(body[start:end+1]), &out); err != nil {
		return visibility.TaskResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	canonical := make(map[string]string, len(target.Competitors))
	for _, n := range target.Names() {
		canonical[visibility.NormalizeName(n)] = n
	}
	brandKey := visibility.NormalizeName(target.Brand)

	res := visibility.TaskResult{
		BrandMentioned:       out.BrandMentioned,
		Sentiment:            visibility.ParseSentiment(out.Sentiment),
		CompetitorsMentioned: map[string]visibility.Mention{},
		Response:             text,
	}
	if out.BrandMentioned {
		res.BrandPosition = validPosition(out.BrandPosition)
	} else {
		res.Sentiment = visibility.SentimentNeutral
	}
	for _, m := range out.Competitors {
		key := visibility.NormalizeName(m.Name)
		name, ok := canonical[key]
		if !ok || key == brandKey {
			continue
		}
		res.CompetitorsMentioned[name] = visibility.Mention{
			Position:  validPosition(m.Position),
			Sentiment: visibility.ParseSentiment(m.Sentiment),
		}
	}
	return res, nil
}

func validPosition(p *int) *int {
	if p == nil || *p < 1 {
		return nil
	}
	v := *p
	return &v
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ Extractor = LLM{}
