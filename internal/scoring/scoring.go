// Package scoring collapses the terminal task grid of one run into visibility rankings.
//
// All functions are pure and total: zero denominators produce zero scores, never NaN.
package scoring

import (
	"math"
	"sort"

	"visibility-backend/internal/visibility"
)

// Input is the complete, terminal task set of one run plus the tracked entities.
type Input struct {
	Brand       string
	Competitors []visibility.Competitor
	// Providers fixes the display order of provider-scoped output. Providers absent
	// from this list but present in Tasks are appended in lexical order.
	Providers []string
	Tasks     []visibility.Task
}

// Result is the aggregated scoring output.
type Result struct {
	Competitors        []visibility.CompetitorRanking
	ProviderRankings   []visibility.ProviderSpecificRanking
	ProviderComparison []visibility.ProviderComparisonData
	Summary            visibility.RunSummary
}

type entity struct {
	name  string
	key   string
	isOwn bool
}

type tally struct {
	mentions     int
	positionSum  float64
	positionN    int
	sentimentSum float64
	sentimentN   int
}

// Aggregate computes overall rankings, per-provider rankings and the comparison matrix.
// Providers with no completed task are left out of provider-scoped output.
func Aggregate(in Input) Result {
	entities := trackedEntities(in.Brand, in.Competitors)
	providers := providerOrder(in.Providers, in.Tasks)

	all := make([]visibility.TaskResult, 0, len(in.Tasks))
	byProvider := make(map[string][]visibility.TaskResult, len(providers))
	for _, task := range in.Tasks {
		if task.Status != visibility.TaskCompleted || task.Result == nil {
			continue
		}
		all = append(all, *task.Result)
		byProvider[task.Key.Provider] = append(byProvider[task.Key.Provider], *task.Result)
	}

	out := Result{
		Competitors: rank(entities, all),
		Summary:     Summarize(in.Tasks),
	}

	cells := make(map[string]map[string]visibility.ProviderCell, len(entities))
	for _, provider := range providers {
		results := byProvider[provider]
		if len(results) == 0 {
			continue
		}
		rows := rank(entities, results)
		out.ProviderRankings = append(out.ProviderRankings, visibility.ProviderSpecificRanking{
			Provider:    provider,
			Competitors: rows,
		})
		for _, row := range rows {
			key := visibility.NormalizeName(row.Name)
			if cells[key] == nil {
				cells[key] = make(map[string]visibility.ProviderCell)
			}
			cells[key][provider] = visibility.ProviderCell{
				VisibilityScore: row.VisibilityScore,
				Mentions:        row.Mentions,
			}
		}
	}
	if out.ProviderRankings == nil {
		out.ProviderRankings = []visibility.ProviderSpecificRanking{}
	}

	out.ProviderComparison = make([]visibility.ProviderComparisonData, 0, len(out.Competitors))
	for _, row := range out.Competitors {
		matrix := cells[visibility.NormalizeName(row.Name)]
		if matrix == nil {
			matrix = map[string]visibility.ProviderCell{}
		}
		out.ProviderComparison = append(out.ProviderComparison, visibility.ProviderComparisonData{
			Competitor: row.Name,
			IsOwn:      row.IsOwn,
			Providers:  matrix,
		})
	}
	return out
}

// Rank scores the brand and competitors over the given completed results.
func Rank(brand string, competitors []visibility.Competitor, results []visibility.TaskResult) []visibility.CompetitorRanking {
	return rank(trackedEntities(brand, competitors), results)
}

// Summarize counts task outcomes.
func Summarize(tasks []visibility.Task) visibility.RunSummary {
	s := visibility.RunSummary{TotalTasks: len(tasks)}
	for _, task := range tasks {
		switch task.Status {
		case visibility.TaskCompleted:
			s.Completed++
		case visibility.TaskFailed:
			s.Failed++
		case visibility.TaskSkipped:
			s.Skipped++
		}
	}
	return s
}

// ApplyWeeklyChange sets WeeklyChange on rows that also appear in a prior ranking.
func ApplyWeeklyChange(current, previous []visibility.CompetitorRanking) []visibility.CompetitorRanking {
	if len(previous) == 0 {
		return current
	}
	prior := make(map[string]int, len(previous))
	for _, row := range previous {
		prior[visibility.NormalizeName(row.Name)] = row.VisibilityScore
	}
	out := make([]visibility.CompetitorRanking, len(current))
	for i, row := range current {
		if old, ok := prior[visibility.NormalizeName(row.Name)]; ok {
			delta := row.VisibilityScore - old
			row.WeeklyChange = &delta
		}
		out[i] = row
	}
	return out
}

func rank(entities []entity, results []visibility.TaskResult) []visibility.CompetitorRanking {
	tallies := make([]tally, len(entities))
	for _, result := range results {
		mentions := normalizedMentions(result.CompetitorsMentioned)
		for i, e := range entities {
			if e.isOwn {
				if !result.BrandMentioned {
					continue
				}
				tallies[i].add(result.BrandPosition, result.Sentiment)
				continue
			}
			m, ok := mentions[e.key]
			if !ok {
				continue
			}
			sentiment := m.Sentiment
			if sentiment == "" {
				sentiment = result.Sentiment
			}
			tallies[i].add(m.Position, sentiment)
		}
	}

	totalMentions := 0
	for _, t := range tallies {
		totalMentions += t.mentions
	}

	rows := make([]visibility.CompetitorRanking, len(entities))
	for i, e := range entities {
		t := tallies[i]
		row := visibility.CompetitorRanking{
			Name:            e.name,
			IsOwn:           e.isOwn,
			Mentions:        t.mentions,
			VisibilityScore: percent(t.mentions, len(results)),
			ShareOfVoice:    percent(t.mentions, totalMentions),
		}
		if t.sentimentN > 0 {
			row.SentimentScore = clampScore(math.Round(t.sentimentSum / float64(t.sentimentN)))
		}
		if t.positionN > 0 {
			avg := math.Round(t.positionSum/float64(t.positionN)*100) / 100
			row.AveragePosition = &avg
		}
		rows[i] = row
	}
	sortRankings(rows)
	return rows
}

func (t *tally) add(position *int, sentiment visibility.Sentiment) {
	t.mentions++
	if position != nil && *position >= 1 {
		t.positionSum += float64(*position)
		t.positionN++
	}
	t.sentimentSum += visibility.ParseSentiment(string(sentiment)).Score()
	t.sentimentN++
}

func sortRankings(rows []visibility.CompetitorRanking) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].VisibilityScore != rows[j].VisibilityScore {
			return rows[i].VisibilityScore > rows[j].VisibilityScore
		}
		if rows[i].ShareOfVoice != rows[j].ShareOfVoice {
			return rows[i].ShareOfVoice > rows[j].ShareOfVoice
		}
		return rows[i].Name < rows[j].Name
	})
}

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return clampScore(math.Round(100 * float64(part) / float64(whole)))
}

func clampScore(v float64) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}

func trackedEntities(brand string, competitors []visibility.Competitor) []entity {
	out := make([]entity, 0, len(competitors)+1)
	seen := make(map[string]struct{}, len(competitors)+1)
	brandKey := visibility.NormalizeName(brand)
	if brandKey != "" {
		out = append(out, entity{name: brand, key: brandKey, isOwn: true})
		seen[brandKey] = struct{}{}
	}
	for _, c := range competitors {
		key := visibility.NormalizeName(c.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entity{name: c.Name, key: key})
	}
	return out
}

func normalizedMentions(in map[string]visibility.Mention) map[string]visibility.Mention {
	out := make(map[string]visibility.Mention, len(in))
	for name, m := range in {
		key := visibility.NormalizeName(name)
		if existing, ok := out[key]; ok && existing.Position != nil {
			if m.Position == nil || *m.Position >= *existing.Position {
				continue
			}
		}
		out[key] = m
	}
	return out
}

func providerOrder(declared []string, tasks []visibility.Task) []string {
	out := make([]string, 0, len(declared))
	seen := make(map[string]struct{}, len(declared))
	for _, p := range declared {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	var extra []string
	for _, task := range tasks {
		p := task.Key.Provider
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		extra = append(extra, p)
	}
	sort.Strings(extra)
	return append(out, extra...)
}
