package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"visibility-backend/internal/events"
	"visibility-backend/internal/notify"
	"visibility-backend/internal/scoring"
	"visibility-backend/internal/shared/storage/object"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/usage"
	"visibility-backend/internal/visibility"
)

const (
	weeklyChangeAge = 7 * 24 * time.Hour
	persistTimeout  = 10 * time.Second
)

// Service ties a run to its user: entitlement before the run, persistence after it.
type Service struct {
	Orchestrator     *Orchestrator
	Repo             Repo
	Usage            *usage.Service
	Store            object.ObjectStore
	Notifier         notify.Notifier
	DefaultProviders []string
	RunTimeout       time.Duration
	Now              func() time.Time
}

// Run is a started analysis.
type Run struct {
	ID     string
	Events <-chan events.Event
	cancel context.CancelFunc
}

// Cancel abandons the run and releases its resources. Safe to call more than once.
func (r *Run) Cancel() {
	if r != nil && r.cancel != nil {
		r.cancel()
	}
}

// Start validates the request, consumes one unit of quota and starts the run. Requests
// that fail setup do not consume quota; their stream carries only the error event.
func (s *Service) Start(ctx context.Context, userID string, req AnalyzeRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Providers) == 0 {
		req.Providers = append([]string(nil), s.DefaultProviders...)
	}

	if s.Orchestrator.Check(req) == nil && s.Usage != nil {
		if _, err := s.Usage.Consume(ctx, userID, 1); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.RunTimeout)
		parentCancel := cancel
		cancel = func() {
			cancelTimeout()
			parentCancel()
		}
	}

	runID := uuid.NewString()
	in := s.Orchestrator.RunWithID(runCtx, runID, req)
	out := make(chan events.Event, eventBuffer)
	go s.forward(runCtx, userID, in, out)
	return &Run{ID: runID, Events: out, cancel: cancel}, nil
}

// forward relays events, storing the aggregated payload before the complete event
// goes out so the client receives the stored id and weekly change.
func (s *Service) forward(ctx context.Context, userID string, in <-chan events.Event, out chan<- events.Event) {
	defer close(out)
	for ev := range in {
		if c, ok := ev.Data.(events.Complete); ok {
			c.Analysis = s.complete(ctx, userID, c.Analysis)
			ev.Data = c
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// complete applies weekly change and hands the payload to persistence. Failures are
// logged and never alter the stream beyond leaving the id unset.
func (s *Service) complete(ctx context.Context, userID string, payload visibility.AggregatedPayload) visibility.AggregatedPayload {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := s.now()
	key := companyKey(payload.Company)
	fields := map[string]any{"run_id": payload.RunID, "user_id": userID}

	if s.Repo != nil {
		prior, err := s.Repo.LatestBefore(ctx, userID, key, now.Add(-weeklyChangeAge))
		switch {
		case err == nil:
			payload.Competitors = scoring.ApplyWeeklyChange(payload.Competitors, prior.Payload.Competitors)
		case !errors.Is(err, ErrNotFound):
			telemetry.Warn("analysis.weekly_change_failed", withErr(fields, err))
		}
	}

	if s.Repo == nil {
		return payload
	}

	payload.ID = uuid.NewString()
	stored := StoredAnalysis{
		ID:          payload.ID,
		RunID:       payload.RunID,
		UserID:      userID,
		Company:     payload.Company,
		CompanyKey:  key,
		Prompts:     payload.Prompts,
		Competitors: competitorsOf(payload),
		Providers:   payload.Providers,
		Payload:     payload,
		CreatedAt:   now,
	}
	fields["analysis_id"] = stored.ID

	if s.Store != nil {
		if archiveKey, err := s.archive(ctx, userID, payload); err != nil {
			telemetry.Warn("analysis.archive_failed", withErr(fields, err))
		} else {
			stored.ArchiveKey = archiveKey
		}
	}

	if err := s.Repo.Create(ctx, stored); err != nil {
		telemetry.Error("analysis.persist_failed", withErr(fields, err))
		payload.ID = ""
		return payload
	}
	telemetry.Info("analysis.persisted", fields)

	if s.Notifier != nil {
		msg := notify.Completed{ID: stored.ID, UserID: userID, Company: stored.Company.Name, CreatedAt: stored.CreatedAt}
		if err := s.Notifier.AnalysisCompleted(ctx, msg); err != nil {
			telemetry.Warn("analysis.notify_failed", withErr(fields, err))
		}
	}
	return payload
}

func (s *Service) archive(ctx context.Context, userID string, payload visibility.AggregatedPayload) (string, error) {
	key, err := object.ArchiveKey(userID, payload.ID)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if _, err := s.Store.Put(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns a stored analysis owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (StoredAnalysis, error) {
	if s.Repo == nil {
		return StoredAnalysis{}, ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return StoredAnalysis{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID, id)
}

// List returns a page of stored analyses, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]StoredAnalysis, error) {
	if s.Repo == nil {
		return []StoredAnalysis{}, nil
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func competitorsOf(p visibility.AggregatedPayload) []visibility.Competitor {
	out := make([]visibility.Competitor, 0, len(p.Competitors))
	for _, row := range p.Competitors {
		if !row.IsOwn {
			out = append(out, visibility.Competitor{Name: row.Name})
		}
	}
	return out
}

func withErr(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
