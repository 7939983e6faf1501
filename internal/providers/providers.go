// Package providers is the uniform "generate text for a prompt" capability over
// external AI assistants, plus the registry that applies per-provider policy.
package providers

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrTimeout         = errors.New("provider request timeout")
	ErrEmptyResponse   = errors.New("provider returned empty response")
	ErrRateLimited     = errors.New("provider rate budget exhausted")
)

// Request is one generation call.
type Request struct {
	Prompt    string
	Model     string
	System    string
	WebSearch bool
	// JSON asks the vendor for a single JSON object when it supports that mode.
	JSON bool
}

// Usage reports token accounting when the vendor returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the generated text.
type Response struct {
	Text  string
	Model string
	Usage *Usage
}

// Generator hides one vendor's request/response shape.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Policy bounds how a provider is called.
type Policy struct {
	// Timeout applies to each call. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout"`
	// MaxConcurrent is the number of in-flight calls allowed. Zero means one.
	MaxConcurrent int `json:"maxConcurrent"`
	// RequestsPerMinute paces call starts. Zero disables pacing.
	RequestsPerMinute int `json:"requestsPerMinute"`
}

// DefaultTimeout applies when a policy leaves Timeout unset.
const DefaultTimeout = 60 * time.Second

func (p Policy) normalized() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	if p.RequestsPerMinute < 0 {
		p.RequestsPerMinute = 0
	}
	return p
}

// Provider is a registry entry.
type Provider struct {
	ID        string
	Kind      string
	Model     string
	WebSearch bool
	Policy    Policy
	Generator Generator
	// Unavailable, when non-empty, explains why calls to this provider are skipped.
	Unavailable string
}

// Info is the public view of a provider.
type Info struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Model     string `json:"model,omitempty"`
	WebSearch bool   `json:"webSearch"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Policy    Policy `json:"policy"`
}

// CallTrace observes a single Registry call, in the manner of net/http/httptrace.
type CallTrace struct {
	// Dispatched runs once the call holds an in-flight slot and has passed pacing,
	// immediately before the vendor is contacted.
	Dispatched func()
}

type callTraceKey struct{}

// WithCallTrace returns a context whose Registry calls report to t.
func WithCallTrace(ctx context.Context, t *CallTrace) context.Context {
	return context.WithValue(ctx, callTraceKey{}, t)
}

func callTraceFrom(ctx context.Context) *CallTrace {
	t, _ := ctx.Value(callTraceKey{}).(*CallTrace)
	return t
}
