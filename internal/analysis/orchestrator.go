package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"visibility-backend/internal/discovery"
	"visibility-backend/internal/events"
	"visibility-backend/internal/extract"
	"visibility-backend/internal/providers"
	"visibility-backend/internal/scoring"
	"visibility-backend/internal/scrape"
	"visibility-backend/internal/shared/metrics"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/shared/util"
	"visibility-backend/internal/visibility"
)

const (
	tracerName = "visibility-backend/analysis"

	defaultMaxPrompts     = 10
	defaultMaxCompetitors = 10
	eventBuffer           = 64
)

// Progress checkpoints per stage. Task completions move progress from
// progressAnalyzing towards progressAnalyzedCeil.
const (
	progressInitializing = 0
	progressCompetitors  = 10
	progressPrompts      = 20
	progressAnalyzing    = 30
	progressAnalyzedCeil = 90
	progressFinalizing   = 95
)

// ProviderRegistry is the slice of providers.Registry the orchestrator needs.
type ProviderRegistry interface {
	Lookup(id string) (providers.Provider, bool)
	Available(id string) (bool, string)
	Generate(ctx context.Context, providerID string, req providers.Request) (providers.Response, error)
}

// Orchestrator runs the prompt × provider grid of one analysis and streams progress.
// It holds no per-run state; every Run is independent.
type Orchestrator struct {
	Registry    ProviderRegistry
	Extractor   extract.Extractor
	Scraper     scrape.Scraper
	Competitors []discovery.CompetitorFinder
	Prompts     discovery.PromptGenerator

	MaxPrompts     int
	MaxCompetitors int

	Now func() time.Time
}

// Check reports the SetupError a request would fail with before any dispatch, or nil.
func (o *Orchestrator) Check(req AnalyzeRequest) error {
	_, err := o.plan(req)
	return err
}

// Run starts an analysis and returns its event stream. The stream ends with exactly
// one complete or error event, unless ctx is cancelled first, in which case it closes
// without a terminal event and in-flight provider calls are cancelled.
func (o *Orchestrator) Run(ctx context.Context, req AnalyzeRequest) <-chan events.Event {
	return o.RunWithID(ctx, uuid.NewString(), req)
}

// RunWithID is Run with a caller-assigned run id.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, req AnalyzeRequest) <-chan events.Event {
	out := make(chan events.Event, eventBuffer)
	r := &run{
		o:      o,
		id:     runID,
		stream: &stream{ctx: ctx, out: out, stage: events.StageInitializing},
	}
	go func() {
		defer close(out)
		r.execute(ctx, req)
	}()
	return out
}

type plan struct {
	req       AnalyzeRequest
	providers []string
}

func (o *Orchestrator) plan(req AnalyzeRequest) (plan, error) {
	if err := req.Validate(); err != nil {
		return plan{}, &SetupError{Code: CodeInvalidRequest, Message: "invalid request", Err: err}
	}
	req = req.normalized(o.maxPrompts(), o.maxCompetitors())
	if req.Company.Name == "" {
		return plan{}, &SetupError{Code: CodeInvalidRequest, Message: "company name is required"}
	}
	if len(req.Providers) == 0 {
		return plan{}, &SetupError{Code: CodeNoProviders, Message: "no providers configured"}
	}
	var known []string
	for _, id := range req.Providers {
		if _, ok := o.Registry.Lookup(id); ok {
			known = append(known, id)
			continue
		}
		telemetry.Warn("analysis.unknown_provider", map[string]any{"provider": id})
	}
	if len(known) == 0 {
		return plan{}, &SetupError{Code: CodeNoProviders, Message: fmt.Sprintf("no known providers among %v", req.Providers)}
	}
	req.Providers = known
	if len(req.Prompts) == 0 && o.Prompts == nil {
		return plan{}, &SetupError{Code: CodeNoPrompts, Message: "no prompts supplied and no prompt generator configured"}
	}
	return plan{req: req, providers: known}, nil
}

func (o *Orchestrator) maxPrompts() int {
	if o.MaxPrompts > 0 {
		return o.MaxPrompts
	}
	return defaultMaxPrompts
}

func (o *Orchestrator) maxCompetitors() int {
	if o.MaxCompetitors > 0 {
		return o.MaxCompetitors
	}
	return defaultMaxCompetitors
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// stream serializes the stage and progress bookkeeping for outgoing events.
type stream struct {
	ctx context.Context
	out chan<- events.Event

	// advancing orders progress events on the wire in the order they were computed.
	advancing sync.Mutex

	mu       sync.Mutex
	stage    events.Stage
	progress int
}

// send delivers a payload stamped with the current stage. It reports false once the
// subscriber is gone.
func (s *stream) send(p events.Payload) bool {
	s.mu.Lock()
	ev := events.New(s.stage, p)
	s.mu.Unlock()
	select {
	case s.out <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// advance moves to stage and emits a progress event. Neither stage nor percentage
// ever moves backwards.
func (s *stream) advance(stage events.Stage, pct int, msg, runID string) bool {
	s.advancing.Lock()
	defer s.advancing.Unlock()
	s.mu.Lock()
	if stage.Rank() > s.stage.Rank() {
		s.stage = stage
	}
	if pct > s.progress {
		s.progress = pct
	}
	p := events.Progress{Progress: s.progress, Message: msg, RunID: runID}
	s.mu.Unlock()
	return s.send(p)
}

type run struct {
	o      *Orchestrator
	id     string
	stream *stream
	target extract.Target
	search bool

	wg   sync.WaitGroup
	mu   sync.Mutex
	done int
	grid *grid
}

func (r *run) execute(ctx context.Context, req AnalyzeRequest) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.run",
		trace.WithAttributes(attribute.String("run.id", r.id)))
	defer span.End()

	outcome := metrics.OutcomeComplete
	defer func() {
		metrics.ObserveAnalysisFinished(outcome, time.Since(start))
		telemetry.Info("analysis.run.finish", map[string]any{
			"run_id":      r.id,
			"outcome":     outcome,
			"tasks":       r.taskCount(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()
	metrics.IncAnalysisStarted()

	p, err := r.o.plan(req)
	if err != nil {
		outcome = metrics.OutcomeError
		r.fail(span, err)
		return
	}
	req = p.req
	r.grid = newGrid(p.providers)
	r.search = req.UseWebSearch
	span.SetAttributes(
		attribute.String("company.name", req.Company.Name),
		attribute.StringSlice("providers", p.providers),
	)
	telemetry.Info("analysis.run.start", map[string]any{
		"run_id":      r.id,
		"company":     req.Company.Name,
		"providers":   p.providers,
		"prompts":     len(req.Prompts),
		"competitors": len(req.Competitors),
	})

	if !r.stream.advance(events.StageInitializing, progressInitializing, "Starting analysis", r.id) {
		outcome = metrics.OutcomeCancelled
		return
	}

	req.Company = r.enrichCompany(ctx, req.Company)

	if len(req.Competitors) == 0 {
		if !r.stream.advance(events.StageIdentifyingCompetitors, progressCompetitors, "Identifying competitors", "") {
			outcome = metrics.OutcomeCancelled
			return
		}
		req.Competitors = r.discoverCompetitors(ctx, req.Company)
		for i, c := range req.Competitors {
			if !r.stream.send(events.CompetitorFound{Competitor: c, Index: i}) {
				outcome = metrics.OutcomeCancelled
				return
			}
		}
	}
	r.target = extract.Target{Brand: req.Company.Name, Competitors: visibility.CompetitorNames(req.Competitors)}

	if err := r.dispatchPrompts(ctx, req); err != nil {
		r.wg.Wait()
		if ctx.Err() != nil {
			outcome = metrics.OutcomeCancelled
			return
		}
		outcome = metrics.OutcomeError
		r.fail(span, err)
		return
	}

	// Every task reaches a terminal state before aggregation.
	r.wg.Wait()
	if ctx.Err() != nil {
		outcome = metrics.OutcomeCancelled
		span.SetStatus(codes.Error, "cancelled")
		return
	}

	if !r.stream.advance(events.StageFinalizing, progressFinalizing, "Calculating rankings", "") {
		outcome = metrics.OutcomeCancelled
		return
	}
	payload, err := r.aggregate(req)
	if err != nil {
		outcome = metrics.OutcomeError
		r.fail(span, err)
		return
	}
	span.SetAttributes(
		attribute.Int("tasks.completed", payload.Summary.Completed),
		attribute.Int("tasks.failed", payload.Summary.Failed),
	)
	if !r.stream.send(events.Complete{Analysis: payload}) {
		outcome = metrics.OutcomeCancelled
	}
}

func (r *run) fail(span trace.Span, err error) {
	msg := sanitizeMessage(err.Error())
	code := ""
	var setup *SetupError
	if errors.As(err, &setup) {
		code = setup.Code
	}
	span.SetStatus(codes.Error, msg)
	telemetry.Warn("analysis.run.error", map[string]any{"run_id": r.id, "code": code, "error": msg})
	r.stream.send(events.Error{Message: msg, Code: code})
}

// enrichCompany fills metadata from the company website. Failures are not fatal.
func (r *run) enrichCompany(ctx context.Context, company visibility.Company) visibility.Company {
	if r.o.Scraper == nil || company.URL == "" || company.Metadata != nil {
		return company
	}
	meta, err := r.o.Scraper.Scrape(ctx, company.URL)
	if err != nil {
		telemetry.Warn("analysis.scrape_failed", map[string]any{"run_id": r.id, "url": company.URL, "error": err})
		return company
	}
	company.Metadata = &meta
	if company.Industry == "" {
		company.Industry = meta.Industry
	}
	return company
}

// discoverCompetitors runs every finder concurrently and merges their answers in
// finder order. A failing finder contributes nothing.
func (r *run) discoverCompetitors(ctx context.Context, company visibility.Company) []visibility.Competitor {
	limit := r.o.maxCompetitors()
	found := make([][]visibility.Competitor, len(r.o.Competitors))
	g, gctx := errgroup.WithContext(ctx)
	for i, finder := range r.o.Competitors {
		g.Go(func() error {
			err := finder.FindCompetitors(gctx, company, limit, func(c visibility.Competitor) error {
				found[i] = append(found[i], c)
				return nil
			})
			if err != nil && gctx.Err() == nil {
				telemetry.Warn("analysis.competitors_failed", map[string]any{
					"run_id": r.id,
					"finder": fmt.Sprintf("%T", finder),
					"error":  err,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	var merged []visibility.Competitor
	for _, list := range found {
		merged = append(merged, list...)
	}
	return dedupeCompetitors(company.Name, merged, limit)
}

// dispatchPrompts appends the tasks of each prompt to the grid and starts them. With
// no supplied prompts, prompts are generated one at a time and dispatched as they arrive.
func (r *run) dispatchPrompts(ctx context.Context, req AnalyzeRequest) error {
	if len(req.Prompts) > 0 {
		if !r.stream.advance(events.StageAnalyzing, progressAnalyzing, "Analyzing prompts", "") {
			return ctx.Err()
		}
		for _, p := range req.Prompts {
			if !r.addPrompt(ctx, strings.TrimSpace(p)) {
				return ctx.Err()
			}
		}
		return nil
	}

	if !r.stream.advance(events.StageGeneratingPrompts, progressPrompts, "Generating prompts", "") {
		return ctx.Err()
	}
	limit := r.o.maxPrompts()
	seen := make(map[string]struct{}, limit)
	in := discovery.PromptInput{Company: req.Company, Competitors: req.Competitors}
	err := r.o.Prompts.GeneratePrompts(ctx, in, limit, func(p string) error {
		key := discovery.NormalizePrompt(p)
		if key == "" {
			return nil
		}
		if _, dup := seen[key]; dup {
			return nil
		}
		seen[key] = struct{}{}
		if !r.addPrompt(ctx, p) {
			return ctx.Err()
		}
		if len(seen) >= limit {
			return discovery.ErrStop
		}
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, discovery.ErrStop) {
		if r.grid.Len() == 0 {
			return &SetupError{Code: CodeNoPrompts, Message: "prompt generation failed", Err: err}
		}
		telemetry.Warn("analysis.prompts_partial", map[string]any{"run_id": r.id, "prompts": len(r.grid.Prompts()), "error": err})
	}
	if r.grid.Len() == 0 {
		return &SetupError{Code: CodeNoPrompts, Message: "no prompts generated"}
	}
	r.stream.advance(events.StageAnalyzing, progressAnalyzing, "Analyzing prompts", "")
	return nil
}

// addPrompt announces a prompt and starts its tasks.
func (r *run) addPrompt(ctx context.Context, prompt string) bool {
	index := len(r.grid.Prompts())
	if !r.stream.send(events.PromptGenerated{Prompt: prompt, Index: index}) {
		return false
	}
	r.mu.Lock()
	tasks := r.grid.Append(prompt)
	r.mu.Unlock()
	for _, t := range tasks {
		r.wg.Add(1)
		go r.runTask(ctx, t)
	}
	return true
}

// runTask drives one cell to a terminal state. It never returns an error: failures
// are reported on the stream and stay local to the cell.
func (r *run) runTask(ctx context.Context, t *visibility.Task) {
	defer r.wg.Done()
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.task", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("provider", t.Key.Provider),
		attribute.String("prompt.hash", util.ShortHash(t.Key.Prompt)),
	))
	defer span.End()

	if ok, reason := r.o.Registry.Available(t.Key.Provider); !ok {
		r.finish(ctx, span, t, visibility.TaskSkipped, nil, &TaskError{Code: CodeProviderUnavailable, Message: sanitizeMessage(reason)}, start)
		return
	}

	started := false
	markStarted := func() {
		started = true
		now := r.o.now()
		t.Status = visibility.TaskRunning
		t.StartedAt = &now
		r.stream.send(events.AnalysisStart{Prompt: t.Key.Prompt, Provider: t.Key.Provider})
	}
	callTrace := &providers.CallTrace{Dispatched: markStarted}
	resp, err := r.o.Registry.Generate(providers.WithCallTrace(ctx, callTrace), t.Key.Provider, providers.Request{
		Prompt:    t.Key.Prompt,
		WebSearch: r.search,
	})
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return
	}
	if err != nil {
		// A task that failed before dispatch (pacing) still opens with analysis-start.
		if !started {
			markStarted()
		}
		r.finish(ctx, span, t, visibility.TaskFailed, nil, classifyProviderError(err), start)
		return
	}

	result, err := r.o.Extractor.Extract(ctx, resp.Text, r.target)
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return
	}
	if err != nil {
		r.finish(ctx, span, t, visibility.TaskFailed, nil, classifyExtractionError(err), start)
		return
	}
	if result.Response == "" {
		result.Response = resp.Text
	}
	r.finish(ctx, span, t, visibility.TaskCompleted, &result, nil, start)
}

func (r *run) finish(ctx context.Context, span trace.Span, t *visibility.Task, status visibility.TaskStatus, result *visibility.TaskResult, taskErr *TaskError, start time.Time) {
	now := r.o.now()
	t.Status = status
	t.FinishedAt = &now
	t.Result = result

	fields := map[string]any{
		"run_id":      r.id,
		"provider":    t.Key.Provider,
		"prompt_hash": util.ShortHash(t.Key.Prompt),
		"status":      string(status),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	complete := events.AnalysisComplete{Prompt: t.Key.Prompt, Provider: t.Key.Provider, Status: status}
	if taskErr != nil {
		t.ErrorCode = taskErr.Code
		t.ErrorMessage = taskErr.Message
		complete.Error = taskErr.Message
		complete.ErrorCode = taskErr.Code
		fields["error_code"] = taskErr.Code
		fields["error"] = taskErr.Message
		span.SetStatus(codes.Error, taskErr.Code)
	}
	span.SetAttributes(attribute.String("task.status", string(status)))
	metrics.IncTask(t.Key.Provider, string(status))
	if status == visibility.TaskCompleted {
		telemetry.Info("analysis.task", fields)
	} else {
		telemetry.Warn("analysis.task", fields)
	}

	if result != nil {
		if !r.stream.send(events.PartialResult{Prompt: t.Key.Prompt, Provider: t.Key.Provider, Response: *result}) {
			return
		}
	}
	if !r.stream.send(complete) {
		return
	}
	r.reportProgress(ctx)
}

func (r *run) reportProgress(ctx context.Context) {
	r.mu.Lock()
	r.done++
	done, total := r.done, r.grid.Len()
	r.mu.Unlock()
	if ctx.Err() != nil || total == 0 {
		return
	}
	pct := progressAnalyzing + (progressAnalyzedCeil-progressAnalyzing)*done/total
	r.stream.advance(events.StageAnalyzing, pct, fmt.Sprintf("Analyzed %d of %d", done, total), "")
}

func (r *run) taskCount() int {
	if r.grid == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grid.Len()
}

// aggregate scores the terminal grid. Scoring is total, so a panic here is a bug
// surfaced as a finalize error rather than a crashed process.
func (r *run) aggregate(req AnalyzeRequest) (payload visibility.AggregatedPayload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &SetupError{Code: CodeAggregationFailed, Message: fmt.Sprintf("aggregation failed: %v", rec)}
		}
	}()
	tasks := r.grid.Snapshot()
	res := scoring.Aggregate(scoring.Input{
		Brand:       req.Company.Name,
		Competitors: req.Competitors,
		Providers:   r.grid.providers,
		Tasks:       tasks,
	})
	return visibility.AggregatedPayload{
		RunID:              r.id,
		Company:            req.Company,
		Prompts:            r.grid.Prompts(),
		Providers:          append([]string(nil), r.grid.providers...),
		Competitors:        res.Competitors,
		ProviderRankings:   res.ProviderRankings,
		ProviderComparison: res.ProviderComparison,
		Summary:            res.Summary,
		GeneratedAt:        r.o.now(),
	}, nil
}
