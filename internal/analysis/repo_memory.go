package analysis

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]StoredAnalysis
	byUser map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]StoredAnalysis),
		byUser: make(map[string][]string),
	}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, a StoredAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[a.ID]; !exists {
		r.byUser[a.UserID] = append(r.byUser[a.UserID], a.ID)
	}
	r.byID[a.ID] = a
	return nil
}

// GetByID returns an analysis owned by userID.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, id string) (StoredAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return StoredAnalysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok || a.UserID != userID {
		return StoredAnalysis{}, ErrNotFound
	}
	return a, nil
}

// ListByUser returns analyses for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]StoredAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	list := r.sortedForUser(userID)
	if offset >= len(list) {
		return []StoredAnalysis{}, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

// LatestBefore returns the newest analysis of the company created at or before cutoff.
func (r *MemoryRepo) LatestBefore(ctx context.Context, userID, companyKey string, cutoff time.Time) (StoredAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return StoredAnalysis{}, err
	}
	for _, a := range r.sortedForUser(userID) {
		if a.CompanyKey == companyKey && !a.CreatedAt.After(cutoff) {
			return a, nil
		}
	}
	return StoredAnalysis{}, ErrNotFound
}

func (r *MemoryRepo) sortedForUser(userID string) []StoredAnalysis {
	r.mu.RLock()
	ids := r.byUser[userID]
	list := make([]StoredAnalysis, 0, len(ids))
	for _, id := range ids {
		list = append(list, r.byID[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}
