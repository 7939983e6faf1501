package analysis

import (
	"context"
	"time"
)

// Repo persists completed analyses.
type Repo interface {
	Create(ctx context.Context, a StoredAnalysis) error
	GetByID(ctx context.Context, userID, id string) (StoredAnalysis, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]StoredAnalysis, error)
	// LatestBefore returns the newest analysis of companyKey created at or before cutoff.
	LatestBefore(ctx context.Context, userID, companyKey string, cutoff time.Time) (StoredAnalysis, error)
}
