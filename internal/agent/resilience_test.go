package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devforge/orchestrator/internal/orcherrors"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      200 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxRateLimitRetries: 2,
	}
}

func TestRunWithResilienceSucceeds(t *testing.T) {
	reg := NewBreakerRegistry()
	fake := NewFake(FakeResponse{Result: Result{Content: "done", SessionID: "s1"}})

	res, err := RunWithResilience(context.Background(), fake, Request{Prompt: "hi"}, nil, reg.Get(TypeClaude), fastRetryConfig())
	if err != nil {
		t.Fatalf("RunWithResilience: %v", err)
	}
	if res.Content != "done" {
		t.Errorf("Content = %q, want %q", res.Content, "done")
	}
}

func TestRunWithResilienceRetriesThenSucceeds(t *testing.T) {
	reg := NewBreakerRegistry()
	fake := NewFake(
		FakeResponse{Err: errors.New("transient failure")},
		FakeResponse{Result: Result{Content: "ok"}},
	)

	res, err := RunWithResilience(context.Background(), fake, Request{Prompt: "hi"}, nil, reg.Get(TypeClaude), fastRetryConfig())
	if err != nil {
		t.Fatalf("RunWithResilience: %v", err)
	}
	if res.Content != "ok" {
		t.Errorf("Content = %q, want %q", res.Content, "ok")
	}
	if fake.Calls() < 2 {
		t.Errorf("expected at least 2 calls, got %d", fake.Calls())
	}
}

func TestRunWithResilienceExhaustsRateLimitRetries(t *testing.T) {
	reg := NewBreakerRegistry()
	fake := NewFake(FakeResponse{Result: Result{Content: "too many requests, please retry after a bit"}})

	cfg := fastRetryConfig()
	cfg.MaxRateLimitRetries = 1

	_, err := RunWithResilience(context.Background(), fake, Request{Prompt: "hi"}, nil, reg.Get(TypeClaude), cfg)
	if err == nil {
		t.Fatal("expected error after exhausting rate-limit retries")
	}
	var rl *orcherrors.RateLimited
	if !errors.As(err, &rl) {
		t.Errorf("expected RateLimited error, got %v (%T)", err, err)
	}
}

func TestRunWithResilienceRespectsContextCancellation(t *testing.T) {
	reg := NewBreakerRegistry()
	fake := NewFake(FakeResponse{Err: errors.New("always fails")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunWithResilience(ctx, fake, Request{Prompt: "hi"}, nil, reg.Get(TypeClaude), fastRetryConfig())
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
