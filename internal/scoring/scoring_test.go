package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visibility-backend/internal/visibility"
)

func intPtr(v int) *int { return &v }

func completed(prompt, provider string, result visibility.TaskResult) visibility.Task {
	return visibility.Task{
		Key:    visibility.TaskKey{Prompt: prompt, Provider: provider},
		Status: visibility.TaskCompleted,
		Result: &result,
	}
}

func failed(prompt, provider string) visibility.Task {
	return visibility.Task{
		Key:          visibility.TaskKey{Prompt: prompt, Provider: provider},
		Status:       visibility.TaskFailed,
		ErrorMessage: "timeout",
	}
}

func scenarioATasks() []visibility.Task {
	zenith := func(pos int) map[string]visibility.Mention {
		return map[string]visibility.Mention{"Zenith": {Position: intPtr(pos)}}
	}
	return []visibility.Task{
		completed("best crm", "A", visibility.TaskResult{BrandMentioned: true, BrandPosition: intPtr(1), Sentiment: visibility.SentimentPositive, CompetitorsMentioned: zenith(2)}),
		completed("best crm", "B", visibility.TaskResult{BrandMentioned: true, BrandPosition: intPtr(2), Sentiment: visibility.SentimentNeutral, CompetitorsMentioned: zenith(1)}),
		completed("crm for startups", "A", visibility.TaskResult{BrandMentioned: true, BrandPosition: intPtr(1), Sentiment: visibility.SentimentPositive, CompetitorsMentioned: map[string]visibility.Mention{}}),
		completed("crm for startups", "B", visibility.TaskResult{BrandMentioned: false, Sentiment: visibility.SentimentNeutral, CompetitorsMentioned: map[string]visibility.Mention{}}),
	}
}

func TestAggregateScenarioA(t *testing.T) {
	res := Aggregate(Input{
		Brand:       "Acme",
		Competitors: []visibility.Competitor{{Name: "Zenith"}},
		Providers:   []string{"A", "B"},
		Tasks:       scenarioATasks(),
	})

	require.Len(t, res.Competitors, 2)
	acme, zenith := res.Competitors[0], res.Competitors[1]
	assert.Equal(t, "Acme", acme.Name)
	assert.True(t, acme.IsOwn)
	assert.Equal(t, 75, acme.VisibilityScore)
	assert.Equal(t, 60, acme.ShareOfVoice)
	assert.Equal(t, "Zenith", zenith.Name)
	assert.Equal(t, 50, zenith.VisibilityScore)
	assert.Equal(t, 40, zenith.ShareOfVoice)

	require.NotNil(t, acme.AveragePosition)
	assert.InDelta(t, 1.33, *acme.AveragePosition, 0.001)
	require.NotNil(t, zenith.AveragePosition)
	assert.InDelta(t, 1.5, *zenith.AveragePosition, 0.001)

	// positive, neutral, positive -> (100+50+100)/3
	assert.Equal(t, 83, acme.SentimentScore)
	assert.Nil(t, acme.WeeklyChange)

	require.Len(t, res.ProviderRankings, 2)
	assert.Equal(t, "A", res.ProviderRankings[0].Provider)
	assert.Equal(t, 100, res.ProviderRankings[0].Competitors[0].VisibilityScore)
	assert.Equal(t, "B", res.ProviderRankings[1].Provider)

	require.Len(t, res.ProviderComparison, 2)
	assert.Equal(t, "Acme", res.ProviderComparison[0].Competitor)
	assert.Equal(t, visibility.ProviderCell{VisibilityScore: 100, Mentions: 2}, res.ProviderComparison[0].Providers["A"])
	assert.Equal(t, visibility.ProviderCell{VisibilityScore: 50, Mentions: 1}, res.ProviderComparison[0].Providers["B"])
	assert.Equal(t, visibility.ProviderCell{VisibilityScore: 50, Mentions: 1}, res.ProviderComparison[1].Providers["A"])

	assert.Equal(t, visibility.RunSummary{TotalTasks: 4, Completed: 4}, res.Summary)
}

func TestAggregateScenarioBOmitsProviderWithoutCompletedTasks(t *testing.T) {
	tasks := []visibility.Task{
		completed("p1", "A", visibility.TaskResult{BrandMentioned: true, Sentiment: visibility.SentimentPositive}),
		completed("p2", "A", visibility.TaskResult{BrandMentioned: false, Sentiment: visibility.SentimentNeutral, CompetitorsMentioned: map[string]visibility.Mention{"zenith": {}}}),
		failed("p1", "B"),
		failed("p2", "B"),
	}

	res := Aggregate(Input{
		Brand:       "Acme",
		Competitors: []visibility.Competitor{{Name: "Zenith"}},
		Providers:   []string{"A", "B"},
		Tasks:       tasks,
	})

	require.Len(t, res.ProviderRankings, 1)
	assert.Equal(t, "A", res.ProviderRankings[0].Provider)
	for _, row := range res.ProviderComparison {
		_, hasB := row.Providers["B"]
		assert.False(t, hasB, "row %s must not carry provider B", row.Competitor)
		assert.Contains(t, row.Providers, "A")
	}
	assert.Equal(t, 50, res.Competitors[0].VisibilityScore)
	assert.Equal(t, visibility.RunSummary{TotalTasks: 4, Completed: 2, Failed: 2}, res.Summary)
}

func TestAggregateNoCompletedTasksYieldsZeroes(t *testing.T) {
	res := Aggregate(Input{
		Brand:       "Acme",
		Competitors: []visibility.Competitor{{Name: "Zenith"}},
		Providers:   []string{"A"},
		Tasks:       []visibility.Task{failed("p1", "A")},
	})

	require.Len(t, res.Competitors, 2)
	for _, row := range res.Competitors {
		assert.Zero(t, row.VisibilityScore)
		assert.Zero(t, row.ShareOfVoice)
		assert.Zero(t, row.SentimentScore)
		assert.Nil(t, row.AveragePosition)
	}
	assert.Empty(t, res.ProviderRankings)
	assert.NotNil(t, res.ProviderRankings)
}

func TestRankOrderingTieBreaks(t *testing.T) {
	results := []visibility.TaskResult{
		{CompetitorsMentioned: map[string]visibility.Mention{"Beta": {}, "Alpha": {}}},
		{CompetitorsMentioned: map[string]visibility.Mention{"Gamma": {}}},
	}
	rows := Rank("Acme", []visibility.Competitor{{Name: "Gamma"}, {Name: "Beta"}, {Name: "Alpha"}}, results)

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma", "Acme"}, names)
}

func TestRankMatchesCompetitorNamesCaseInsensitively(t *testing.T) {
	results := []visibility.TaskResult{
		{CompetitorsMentioned: map[string]visibility.Mention{"  zenith  corp": {Position: intPtr(3), Sentiment: visibility.SentimentNegative}}, Sentiment: visibility.SentimentPositive},
	}
	rows := Rank("Acme", []visibility.Competitor{{Name: "Zenith Corp"}}, results)

	require.Len(t, rows, 2)
	assert.Equal(t, "Zenith Corp", rows[0].Name)
	assert.Equal(t, 100, rows[0].VisibilityScore)
	assert.Equal(t, 0, rows[0].SentimentScore)
	require.NotNil(t, rows[0].AveragePosition)
	assert.Equal(t, 3.0, *rows[0].AveragePosition)
}

func TestBrandListedAsCompetitorIsNotDoubleCounted(t *testing.T) {
	rows := Rank("Acme", []visibility.Competitor{{Name: "ACME"}, {Name: "Zenith"}}, nil)
	assert.Len(t, rows, 2)
}

func TestApplyWeeklyChange(t *testing.T) {
	current := []visibility.CompetitorRanking{{Name: "Acme", VisibilityScore: 70}, {Name: "NewCo", VisibilityScore: 10}}
	previous := []visibility.CompetitorRanking{{Name: "acme", VisibilityScore: 50}}

	out := ApplyWeeklyChange(current, previous)

	require.NotNil(t, out[0].WeeklyChange)
	assert.Equal(t, 20, *out[0].WeeklyChange)
	assert.Nil(t, out[1].WeeklyChange)
	assert.Nil(t, current[0].WeeklyChange, "input must not be mutated")
}

func TestScoresStayInBoundsAndShareOfVoiceSumsToHundred(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	competitors := []visibility.Competitor{{Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E"}}
	sentiments := []visibility.Sentiment{visibility.SentimentPositive, visibility.SentimentNeutral, visibility.SentimentNegative}

	for run := 0; run < 200; run++ {
		var tasks []visibility.Task
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			provider := []string{"openai", "anthropic", "perplexity"}[rng.Intn(3)]
			if rng.Intn(5) == 0 {
				tasks = append(tasks, failed("p", provider))
				continue
			}
			result := visibility.TaskResult{
				BrandMentioned:       rng.Intn(2) == 0,
				Sentiment:            sentiments[rng.Intn(3)],
				CompetitorsMentioned: map[string]visibility.Mention{},
			}
			if result.BrandMentioned && rng.Intn(2) == 0 {
				result.BrandPosition = intPtr(1 + rng.Intn(5))
			}
			for _, c := range competitors {
				if rng.Intn(3) == 0 {
					result.CompetitorsMentioned[c.Name] = visibility.Mention{Position: intPtr(1 + rng.Intn(5))}
				}
			}
			tasks = append(tasks, completed("p", provider, result))
		}

		res := Aggregate(Input{Brand: "A", Competitors: competitors, Tasks: tasks})
		totalMentions, sov := 0, 0
		for _, row := range res.Competitors {
			assert.GreaterOrEqual(t, row.VisibilityScore, 0)
			assert.LessOrEqual(t, row.VisibilityScore, 100)
			assert.GreaterOrEqual(t, row.ShareOfVoice, 0)
			assert.LessOrEqual(t, row.ShareOfVoice, 100)
			assert.GreaterOrEqual(t, row.SentimentScore, 0)
			assert.LessOrEqual(t, row.SentimentScore, 100)
			if row.AveragePosition != nil {
				assert.GreaterOrEqual(t, *row.AveragePosition, 1.0)
			}
			totalMentions += row.Mentions
			sov += row.ShareOfVoice
		}
		if totalMentions > 0 {
			assert.InDelta(t, 100, sov, float64(len(res.Competitors))/2+0.01, "run %d", run)
		}
	}
}
