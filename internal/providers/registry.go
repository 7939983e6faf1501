package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"visibility-backend/internal/shared/metrics"
)

// Registry holds the enabled providers for a process. It is built once at startup and
// passed explicitly to whoever needs it.
type Registry struct {
	order   []string
	entries map[string]*entry
}

type entry struct {
	provider Provider
	slots    *semaphore.Weighted
	pacer    *rate.Limiter
}

// NewRegistry validates and indexes the given providers in order.
func NewRegistry(list ...Provider) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry, len(list))}
	for _, p := range list {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("provider id is required")
		}
		if _, dup := r.entries[id]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", id)
		}
		if p.Generator == nil && p.Unavailable == "" {
			p.Unavailable = "no client configured"
		}
		p.ID = id
		p.Policy = p.Policy.normalized()
		e := &entry{
			provider: p,
			slots:    semaphore.NewWeighted(int64(p.Policy.MaxConcurrent)),
		}
		if p.Policy.RequestsPerMinute > 0 {
			e.pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.Policy.RequestsPerMinute)), 1)
		}
		r.entries[id] = e
		r.order = append(r.order, id)
	}
	return r, nil
}

// IDs lists provider ids in registration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Lookup returns a provider by id.
func (r *Registry) Lookup(id string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	e, ok := r.entries[id]
	if !ok {
		return Provider{}, false
	}
	return e.provider, true
}

// Available reports whether calls to id will be attempted, with the reason when not.
func (r *Registry) Available(id string) (bool, string) {
	p, ok := r.Lookup(id)
	if !ok {
		return false, ErrUnknownProvider.Error()
	}
	if p.Unavailable != "" {
		return false, p.Unavailable
	}
	return true, ""
}

// Infos describes every provider in registration order.
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, len(r.IDs()))
	for _, id := range r.IDs() {
		p := r.entries[id].provider
		out = append(out, Info{
			ID:        p.ID,
			Kind:      p.Kind,
			Model:     p.Model,
			WebSearch: p.WebSearch,
			Available: p.Unavailable == "",
			Reason:    p.Unavailable,
			Policy:    p.Policy,
		})
	}
	return out
}

// Generate runs one call against a provider under its policy: it waits for an in-flight
// slot and the pacer, then bounds the call by the provider timeout. A timeout surfaces
// as ErrTimeout, a pacing wait that cannot finish before the ctx deadline as
// ErrRateLimited, and cancellation of ctx as ctx.Err().
func (r *Registry) Generate(ctx context.Context, providerID string, req Request) (Response, error) {
	if r == nil {
		return Response{}, ErrUnknownProvider
	}
	e, ok := r.entries[providerID]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if e.provider.Unavailable != "" {
		return Response{}, fmt.Errorf("%w: %s", ErrUnavailable, e.provider.Unavailable)
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return Response{}, err
	}
	defer e.slots.Release(1)

	if e.pacer != nil {
		if err := e.pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			return Response{}, fmt.Errorf("%w: %s: %v", ErrRateLimited, providerID, err)
		}
	}

	if req.Model == "" {
		req.Model = e.provider.Model
	}
	if !e.provider.WebSearch {
		req.WebSearch = false
	}

	if t := callTraceFrom(ctx); t != nil && t.Dispatched != nil {
		t.Dispatched()
	}

	callCtx, cancel := context.WithTimeout(ctx, e.provider.Policy.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Generator.Generate(callCtx, req)
	elapsed := time.Since(start)
	metrics.ObserveProviderCall(providerID, elapsed, err)

	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w after %s: %s", ErrTimeout, e.provider.Policy.Timeout, providerID)
		}
		return Response{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Response{}, fmt.Errorf("%w: %s", ErrEmptyResponse, providerID)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp, nil
}
