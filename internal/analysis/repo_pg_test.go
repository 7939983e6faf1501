package analysis

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"visibility-backend/internal/visibility"
)

var analysisColumns = []string{
	"id", "run_id", "user_id", "company_name", "company_url", "company_key",
	"prompts", "competitors", "providers", "payload", "archive_key", "created_at",
}

type jsonArg struct {
	want string
}

func (a jsonArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	return ok && string(raw) == a.want
}

func TestPGRepoCreateWritesJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	a := StoredAnalysis{
		ID:         "00000000-0000-0000-0000-000000000001",
		RunID:      "00000000-0000-0000-0000-0000000000aa",
		UserID:     "user-1",
		Company:    visibility.Company{Name: "Acme", URL: "https://acme.example"},
		CompanyKey: "url:acme.example",
		Prompts:    []string{"best crm"},
		Providers:  []string{"openai"},
		ArchiveKey: "analyses/x/1.json",
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO brand_analyses").
		WithArgs(
			a.ID,
			a.RunID,
			a.UserID,
			"Acme",
			"https://acme.example",
			a.CompanyKey,
			jsonArg{`["best crm"]`},
			jsonArg{`[]`}, // nil competitors
			jsonArg{`["openai"]`},
			sqlmock.AnyArg(),
			a.ArchiveKey,
			a.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM brand_analyses").
		WithArgs("missing", "user-1").
		WillReturnRows(sqlmock.NewRows(analysisColumns))

	_, err = (&PGRepo{DB: db}).GetByID(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListByUserDecodesPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	payload, _ := json.Marshal(visibility.AggregatedPayload{
		ID:      "00000000-0000-0000-0000-000000000001",
		Company: visibility.Company{Name: "Acme", Industry: "CRM"},
		Competitors: []visibility.CompetitorRanking{
			{Name: "Acme", IsOwn: true, VisibilityScore: 67},
		},
	})
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(analysisColumns).AddRow(
		"00000000-0000-0000-0000-000000000001", "run-1", "user-1", "Acme", "", "name:acme",
		[]byte(`["best crm","cheap crm"]`), []byte(`[{"name":"Zenith"}]`), []byte(`["openai"]`),
		payload, "", created,
	)
	mock.ExpectQuery("FROM brand_analyses").
		WithArgs("user-1", 10, 0).
		WillReturnRows(rows)

	list, err := (&PGRepo{DB: db}).ListByUser(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one row, got %d", len(list))
	}
	got := list[0]
	if len(got.Prompts) != 2 || got.Competitors[0].Name != "Zenith" || got.Company.Industry != "CRM" {
		t.Fatalf("unexpected analysis %+v", got)
	}
	if s := got.summary(); s.VisibilityScore == nil || *s.VisibilityScore != 67 || s.Prompts != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoLatestBeforeFiltersByCompany(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("company_key = \\$2 AND created_at <= \\$3").
		WithArgs("user-1", "url:acme.example", cutoff).
		WillReturnRows(sqlmock.NewRows(analysisColumns))

	_, err = (&PGRepo{DB: db}).LatestBefore(context.Background(), "user-1", "url:acme.example", cutoff)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
