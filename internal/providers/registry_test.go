package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(text string) GeneratorFunc {
	return func(ctx context.Context, req Request) (Response, error) {
		return Response{Text: text}, nil
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(Provider{ID: "a", Generator: echo("x")}, Provider{ID: "a", Generator: echo("y")})
	require.Error(t, err)
	_, err = NewRegistry(Provider{ID: " "})
	require.Error(t, err)
}

func TestRegistryDefaultsPolicy(t *testing.T) {
	reg, err := NewRegistry(Provider{ID: "a", Generator: echo("x")})
	require.NoError(t, err)
	p, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, DefaultTimeout, p.Policy.Timeout)
	assert.Equal(t, 1, p.Policy.MaxConcurrent)
}

func TestGenerateUnknownAndUnavailable(t *testing.T) {
	reg, err := NewRegistry(
		Provider{ID: "ok", Generator: echo("hi")},
		Provider{ID: "nokey", Unavailable: "KEY not set"},
		Provider{ID: "noclient"},
	)
	require.NoError(t, err)

	_, err = reg.Generate(context.Background(), "missing", Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = reg.Generate(context.Background(), "nokey", Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrUnavailable)

	ok, reason := reg.Available("noclient")
	assert.False(t, ok)
	assert.Equal(t, "no client configured", reason)

	resp, err := reg.Generate(context.Background(), "ok", Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
}

func TestGenerateMapsTimeout(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	reg, err := NewRegistry(Provider{ID: "slow", Generator: slow, Policy: Policy{Timeout: 20 * time.Millisecond}})
	require.NoError(t, err)

	_, err = reg.Generate(context.Background(), "slow", Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateReturnsCancellationNotTimeout(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	reg, err := NewRegistry(Provider{ID: "slow", Generator: slow, Policy: Policy{Timeout: time.Minute}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = reg.Generate(ctx, "slow", Request{Prompt: "p"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateRejectsBlankText(t *testing.T) {
	reg, err := NewRegistry(Provider{ID: "blank", Generator: echo("   ")})
	require.NoError(t, err)
	_, err = reg.Generate(context.Background(), "blank", Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateFillsModelAndDropsUnsupportedSearch(t *testing.T) {
	var seen Request
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		seen = req
		return Response{Text: "ok"}, nil
	})
	reg, err := NewRegistry(Provider{ID: "a", Model: "m1", Generator: gen})
	require.NoError(t, err)

	resp, err := reg.Generate(context.Background(), "a", Request{Prompt: "p", WebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "m1", seen.Model)
	assert.False(t, seen.WebSearch)
	assert.Equal(t, "m1", resp.Model)
}

func TestGenerateBoundsInFlightPerProvider(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Response{Text: "ok"}, nil
	})
	reg, err := NewRegistry(
		Provider{ID: "serial", Generator: gen},
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Generate(context.Background(), "serial", Request{Prompt: "p"})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestGenerateAllowsConfiguredParallelism(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		started.Add(1)
		<-release
		return Response{Text: "ok"}, nil
	})
	reg, err := NewRegistry(Provider{ID: "wide", Generator: gen, Policy: Policy{MaxConcurrent: 3}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Generate(context.Background(), "wide", Request{Prompt: "p"})
		}()
	}
	require.Eventually(t, func() bool { return started.Load() == 3 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}

func TestInfosReflectRegistrationOrder(t *testing.T) {
	reg, err := NewRegistry(
		Provider{ID: "b", Kind: "openai", Generator: echo("x")},
		Provider{ID: "a", Kind: "anthropic", Unavailable: "missing key"},
	)
	require.NoError(t, err)
	infos := reg.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].ID)
	assert.True(t, infos[0].Available)
	assert.False(t, infos[1].Available)
	assert.Equal(t, "missing key", infos[1].Reason)
}

func TestCallTraceFiresAfterSlotIsHeld(t *testing.T) {
	release := make(chan struct{})
	reg, err := NewRegistry(Provider{ID: "a", Generator: GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		<-release
		return Response{Text: "ok"}, nil
	})})
	require.NoError(t, err)

	var first, second atomic.Bool
	go func() {
		_, _ = reg.Generate(WithCallTrace(context.Background(), &CallTrace{Dispatched: func() { first.Store(true) }}), "a", Request{Prompt: "1"})
	}()
	require.Eventually(t, first.Load, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = reg.Generate(WithCallTrace(context.Background(), &CallTrace{Dispatched: func() { second.Store(true) }}), "a", Request{Prompt: "2"})
	}()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, second.Load(), "second call must wait for the only slot")

	close(release)
	<-done
	assert.True(t, second.Load())
}

func TestCallTraceSkippedForUnavailable(t *testing.T) {
	reg, err := NewRegistry(Provider{ID: "off", Unavailable: "KEY not set"})
	require.NoError(t, err)
	called := false
	_, err = reg.Generate(WithCallTrace(context.Background(), &CallTrace{Dispatched: func() { called = true }}), "off", Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, called)
}

func TestGenerateReportsPacingPastDeadline(t *testing.T) {
	reg, err := NewRegistry(Provider{ID: "a", Generator: echo("ok"), Policy: Policy{RequestsPerMinute: 1}})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dispatched := 0
	ctx = WithCallTrace(ctx, &CallTrace{Dispatched: func() { dispatched++ }})
	_, err = reg.Generate(ctx, "a", Request{Prompt: "one"})
	require.NoError(t, err)

	_, err = reg.Generate(ctx, "a", Request{Prompt: "two"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 1, dispatched)
}
