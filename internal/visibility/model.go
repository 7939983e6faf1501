// Package visibility holds the domain types shared by the orchestrator, the scoring
// engine, the progress event protocol and the client state reducer.
package visibility

import (
	"strings"
	"time"
)

// Company is the brand whose visibility is measured.
type Company struct {
	Name     string           `json:"name" validate:"required,max=200"`
	URL      string           `json:"url,omitempty" validate:"omitempty,url"`
	Industry string           `json:"industry,omitempty" validate:"max=200"`
	Metadata *CompanyMetadata `json:"metadata,omitempty"`
}

// CompanyMetadata is what the scraping collaborator returns for a company URL.
type CompanyMetadata struct {
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Industry    string       `json:"industry,omitempty"`
	Keywords    []string     `json:"keywords,omitempty"`
	Competitors []Competitor `json:"competitors,omitempty"`
	Summary     string       `json:"summary,omitempty"`
}

// Competitor is a named entity tracked alongside the brand.
type Competitor struct {
	Name string `json:"name" validate:"required,max=200"`
	URL  string `json:"url,omitempty" validate:"omitempty,url"`
}

// CompetitorNames returns the names of cs in order.
func CompetitorNames(cs []Competitor) []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// TaskStatus is the lifecycle state of one grid cell.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status ends the task lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Rank orders statuses along the lifecycle; terminal statuses share the highest rank.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskRunning:
		return 1
	case TaskCompleted, TaskFailed, TaskSkipped:
		return 2
	default:
		return 0
	}
}

// TaskKey identifies a task within a run.
type TaskKey struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

func (k TaskKey) String() string {
	return k.Provider + "|" + k.Prompt
}

// Task is one (prompt, provider) unit of work.
type Task struct {
	Key          TaskKey     `json:"key"`
	PromptIndex  int         `json:"promptIndex"`
	Status       TaskStatus  `json:"status"`
	Result       *TaskResult `json:"result,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	FinishedAt   *time.Time  `json:"finishedAt,omitempty"`
}

// Sentiment is the tone an answer takes toward an entity.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Score maps a sentiment onto the 0-100 scale.
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentPositive:
		return 100
	case SentimentNegative:
		return 0
	default:
		return 50
	}
}

// ParseSentiment normalizes free-form sentiment labels, defaulting to neutral.
func ParseSentiment(raw string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive", "pos", "favorable":
		return SentimentPositive
	case "negative", "neg", "unfavorable":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Mention records a competitor appearing in an answer.
type Mention struct {
	Position  *int      `json:"position,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
}

// TaskResult is the structured signal extracted from one provider answer.
type TaskResult struct {
	BrandMentioned       bool               `json:"brandMentioned"`
	BrandPosition        *int               `json:"brandPosition,omitempty"`
	Sentiment            Sentiment          `json:"sentiment"`
	CompetitorsMentioned map[string]Mention `json:"competitorsMentioned"`
	Response             string             `json:"response,omitempty"`
}

// CompetitorRanking is one row of a ranking table.
type CompetitorRanking struct {
	Name            string   `json:"name"`
	IsOwn           bool     `json:"isOwn"`
	VisibilityScore int      `json:"visibilityScore"`
	ShareOfVoice    int      `json:"shareOfVoice"`
	AveragePosition *float64 `json:"averagePosition,omitempty"`
	SentimentScore  int      `json:"sentimentScore"`
	Mentions        int      `json:"mentions"`
	WeeklyChange    *int     `json:"weeklyChange,omitempty"`
}

// ProviderSpecificRanking is a ranking restricted to a single provider.
type ProviderSpecificRanking struct {
	Provider    string              `json:"provider"`
	Competitors []CompetitorRanking `json:"competitors"`
}

// ProviderCell is one matrix entry of the comparison table.
type ProviderCell struct {
	VisibilityScore int `json:"visibilityScore"`
	Mentions        int `json:"mentions"`
}

// ProviderComparisonData is one competitor row of the provider comparison matrix.
type ProviderComparisonData struct {
	Competitor string                  `json:"competitor"`
	IsOwn      bool                    `json:"isOwn"`
	Providers  map[string]ProviderCell `json:"providers"`
}

// RunSummary counts terminal task outcomes.
type RunSummary struct {
	TotalTasks int `json:"totalTasks"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// AggregatedPayload is the body of the terminal complete event.
type AggregatedPayload struct {
	// ID is set once the analysis has been stored.
	ID                 string                    `json:"id,omitempty"`
	RunID              string                    `json:"runId,omitempty"`
	Company            Company                   `json:"company"`
	Prompts            []string                  `json:"prompts"`
	Providers          []string                  `json:"providers"`
	Competitors        []CompetitorRanking       `json:"competitors"`
	ProviderRankings   []ProviderSpecificRanking `json:"providerRankings"`
	ProviderComparison []ProviderComparisonData  `json:"providerComparison"`
	Summary            RunSummary                `json:"summary"`
	GeneratedAt        time.Time                 `json:"generatedAt"`
}

// NormalizeName folds an entity name for case- and space-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
