package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, run_id, user_id, company_name, company_url, company_key,
       prompts, competitors, providers, payload, archive_key, created_at
FROM brand_analyses`

// Create inserts a completed analysis.
func (r *PGRepo) Create(ctx context.Context, a StoredAnalysis) error {
	const query = `
INSERT INTO brand_analyses (
	id, run_id, user_id, company_name, company_url, company_key,
	prompts, competitors, providers, payload, archive_key, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	prompts, err := marshalJSONB(a.Prompts, "[]")
	if err != nil {
		return err
	}
	competitors, err := marshalJSONB(a.Competitors, "[]")
	if err != nil {
		return err
	}
	providerIDs, err := marshalJSONB(a.Providers, "[]")
	if err != nil {
		return err
	}
	payload, err := marshalJSONB(a.Payload, "{}")
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		a.ID,
		a.RunID,
		a.UserID,
		a.Company.Name,
		a.Company.URL,
		a.CompanyKey,
		prompts,
		competitors,
		providerIDs,
		payload,
		a.ArchiveKey,
		a.CreatedAt,
	)
	return err
}

// GetByID returns an analysis owned by userID.
func (r *PGRepo) GetByID(ctx context.Context, userID, id string) (StoredAnalysis, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1::uuid AND user_id = $2
LIMIT 1`, id, userID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredAnalysis{}, ErrNotFound
	}
	return a, err
}

// ListByUser returns analyses for a user, newest first, with limit/offset.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]StoredAnalysis, error) {
	if offset < 0 {
		offset = 0
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.DB.QueryContext(ctx, selectColumns+`
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limitArg, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StoredAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestBefore returns the newest analysis of the company created at or before cutoff.
func (r *PGRepo) LatestBefore(ctx context.Context, userID, companyKey string, cutoff time.Time) (StoredAnalysis, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE user_id = $1 AND company_key = $2 AND created_at <= $3
ORDER BY created_at DESC
LIMIT 1`, userID, companyKey, cutoff)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredAnalysis{}, ErrNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (StoredAnalysis, error) {
	var a StoredAnalysis
	var prompts, competitors, providerIDs, payload []byte
	if err := row.Scan(
		&a.ID,
		&a.RunID,
		&a.UserID,
		&a.Company.Name,
		&a.Company.URL,
		&a.CompanyKey,
		&prompts,
		&competitors,
		&providerIDs,
		&payload,
		&a.ArchiveKey,
		&a.CreatedAt,
	); err != nil {
		return StoredAnalysis{}, err
	}
	if err := unmarshalJSONB(prompts, &a.Prompts); err != nil {
		return StoredAnalysis{}, fmt.Errorf("decode prompts: %w", err)
	}
	if err := unmarshalJSONB(competitors, &a.Competitors); err != nil {
		return StoredAnalysis{}, fmt.Errorf("decode competitors: %w", err)
	}
	if err := unmarshalJSONB(providerIDs, &a.Providers); err != nil {
		return StoredAnalysis{}, fmt.Errorf("decode providers: %w", err)
	}
	if err := unmarshalJSONB(payload, &a.Payload); err != nil {
		return StoredAnalysis{}, fmt.Errorf("decode payload: %w", err)
	}
	if a.Payload.Company.Name != "" {
		a.Company = a.Payload.Company
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func marshalJSONB(value any, empty string) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte(empty), nil
	}
	return raw, nil
}

func unmarshalJSONB(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
