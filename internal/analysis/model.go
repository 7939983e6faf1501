package analysis

import (
	"strings"
	"time"

	"visibility-backend/internal/scrape"
	"visibility-backend/internal/visibility"
)

// StoredAnalysis is a completed analysis as persisted for later retrieval.
type StoredAnalysis struct {
	ID          string                       `json:"id"`
	RunID       string                       `json:"runId"`
	UserID      string                       `json:"userId"`
	Company     visibility.Company           `json:"company"`
	CompanyKey  string                       `json:"-"`
	Prompts     []string                     `json:"prompts"`
	Competitors []visibility.Competitor      `json:"competitors"`
	Providers   []string                     `json:"providers"`
	Payload     visibility.AggregatedPayload `json:"payload"`
	ArchiveKey  string                       `json:"archiveKey,omitempty"`
	CreatedAt   time.Time                    `json:"createdAt"`
}

// Summary is the list view of a stored analysis.
type Summary struct {
	ID              string    `json:"id"`
	Company         string    `json:"company"`
	CompanyURL      string    `json:"companyUrl,omitempty"`
	Providers       []string  `json:"providers"`
	Prompts         int       `json:"prompts"`
	VisibilityScore *int      `json:"visibilityScore,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (a StoredAnalysis) summary() Summary {
	s := Summary{
		ID:         a.ID,
		Company:    a.Company.Name,
		CompanyURL: a.Company.URL,
		Providers:  a.Providers,
		Prompts:    len(a.Prompts),
		CreatedAt:  a.CreatedAt,
	}
	for _, row := range a.Payload.Competitors {
		if row.IsOwn {
			score := row.VisibilityScore
			s.VisibilityScore = &score
			break
		}
	}
	return s
}

// companyKey identifies "the same company" across runs: the website host and path
// when a URL is known, otherwise the normalized name.
func companyKey(c visibility.Company) string {
	if c.URL != "" {
		if u, err := scrape.NormalizeURL(c.URL); err == nil {
			return "url:" + strings.ToLower(u.Host) + strings.TrimRight(u.EscapedPath(), "/")
		}
	}
	return "name:" + visibility.NormalizeName(c.Name)
}
