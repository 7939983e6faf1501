package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/visibility"
)

func intp(v int) *int { return &v }

func TestTargetNamesDeduplicates(t *testing.T) {
	target := Target{Brand: "Acme", Competitors: []string{"Zenith", " acme ", "", "zenith"}}
	assert.Equal(t, []string{"Acme", "Zenith"}, target.Names())
}

func TestHeuristicUsesNumberedList(t *testing.T) {
	text := "Here are the top CRMs:\n1. Zenith is a popular and reliable choice.\n2. **Acme** is known for being easy to use.\n3. Initech is sometimes criticized as expensive."
	res, err := Heuristic{}.Extract(context.Background(), text, Target{Brand: "Acme", Competitors: []string{"Zenith", "Initech", "Globex"}})
	require.NoError(t, err)

	assert.True(t, res.BrandMentioned)
	assert.Equal(t, intp(2), res.BrandPosition)
	assert.Equal(t, visibility.SentimentPositive, res.Sentiment)
	require.Len(t, res.CompetitorsMentioned, 2)
	assert.Equal(t, visibility.Mention{Position: intp(1), Sentiment: visibility.SentimentPositive}, res.CompetitorsMentioned["Zenith"])
	assert.Equal(t, visibility.Mention{Position: intp(3), Sentiment: visibility.SentimentNegative}, res.CompetitorsMentioned["Initech"])
	assert.Equal(t, text, res.Response)
}

func TestHeuristicFallsBackToMentionOrder(t *testing.T) {
	text := "Most teams pick Zenith. Some prefer acme for its price."
	res, err := Heuristic{}.Extract(context.Background(), text, Target{Brand: "Acme", Competitors: []string{"Zenith"}})
	require.NoError(t, err)
	assert.Equal(t, intp(2), res.BrandPosition)
	assert.Equal(t, intp(1), res.CompetitorsMentioned["Zenith"].Position)
	assert.Equal(t, visibility.SentimentNeutral, res.Sentiment)
}

func TestHeuristicRespectsWordBoundaries(t *testing.T) {
	res, err := Heuristic{}.Extract(context.Background(), "Acmeville has great pizza. “Acme”? Never heard of it.", Target{Brand: "Acme"})
	require.NoError(t, err)
	assert.True(t, res.BrandMentioned)

	res, err = Heuristic{}.Extract(context.Background(), "Acmeville has great pizza.", Target{Brand: "Acme"})
	require.NoError(t, err)
	assert.False(t, res.BrandMentioned)
	assert.Nil(t, res.BrandPosition)
	assert.Empty(t, res.CompetitorsMentioned)
}

func TestHeuristicRejectsEmptyText(t *testing.T) {
	_, err := Heuristic{}.Extract(context.Background(), "  \n", Target{Brand: "Acme"})
	assert.ErrorIs(t, err, ErrEmptyText)
}

type fakeCaller struct {
	text string
	err  error
	got  providers.Request
}

func (f *fakeCaller) Generate(ctx context.Context, providerID string, req providers.Request) (providers.Response, error) {
	f.got = req
	return providers.Response{Text: f.text}, f.err
}

func TestLLMParsesJSONAndCanonicalizesNames(t *testing.T) {
	caller := &fakeCaller{text: "```json\n{\"brandMentioned\":true,\"brandPosition\":2,\"sentiment\":\"Positive\",\"competitors\":[{\"name\":\"zenith\",\"position\":1,\"sentiment\":\"neutral\"},{\"name\":\"Unknown Co\",\"position\":3},{\"name\":\"Beta\",\"position\":0,\"sentiment\":\"negative\"}]}\n```"}
	ex := LLM{Caller: caller, ProviderID: "openai"}
	res, err := ex.Extract(context.Background(), "answer text", Target{Brand: "Acme", Competitors: []string{"Zenith", "Beta"}})
	require.NoError(t, err)

	assert.True(t, caller.got.JSON)
	assert.Contains(t, caller.got.Prompt, "answer text")
	assert.True(t, res.BrandMentioned)
	assert.Equal(t, intp(2), res.BrandPosition)
	assert.Equal(t, visibility.SentimentPositive, res.Sentiment)
	require.Len(t, res.CompetitorsMentioned, 2)
	assert.Equal(t, intp(1), res.CompetitorsMentioned["Zenith"].Position)
	assert.Nil(t, res.CompetitorsMentioned["Beta"].Position)
	assert.Equal(t, visibility.SentimentNegative, res.CompetitorsMentioned["Beta"].Sentiment)
}

func TestLLMMalformedWithoutFallback(t *testing.T) {
	ex := LLM{Caller: &fakeCaller{text: "I cannot help with that"}, ProviderID: "openai"}
	_, err := ex.Extract(context.Background(), "answer", Target{Brand: "Acme"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLLMFallsBackToHeuristic(t *testing.T) {
	ex := LLM{Caller: &fakeCaller{err: errors.New("quota exceeded")}, ProviderID: "openai", Fallback: Heuristic{}}
	res, err := ex.Extract(context.Background(), "1. Acme is the best option.", Target{Brand: "Acme"})
	require.NoError(t, err)
	assert.True(t, res.BrandMentioned)
	assert.Equal(t, intp(1), res.BrandPosition)
}
