package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/devforge/orchestrator/internal/orcherrors"
)

// RetryConfig configures the exponential backoff wrapping every agent call.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxRateLimitRetries bounds how many times a detected rate limit may
	// be retried, distinct from MaxElapsedTime which bounds wall-clock time.
	MaxRateLimitRetries int
}

// DefaultRetryConfig mirrors the defaults used for backend calls
// throughout the orchestrator.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRateLimitRetries:  5,
	}
}

// BreakerRegistry hands out one circuit breaker per agent type, so a string
// of Claude failures doesn't also throttle Codex calls.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[AgentType]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry returns an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[AgentType]*gobreaker.CircuitBreaker)}
}

// Get returns (creating if necessary) the breaker for agentType.
func (r *BreakerRegistry) Get(agentType AgentType) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentType]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(agentType),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("agent: circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[agentType] = cb
	return cb
}

// RunWithResilience executes r.Run(ctx, req, logw) through cb's circuit
// breaker with exponential backoff retry. A rate limit reported in the
// run's error first sleeps for its RetryAfter hint (capped at
// maxRateLimitSleep) and is then retried by the backoff policy; a
// rate-limit phrase found in the final response is retried on the backoff
// schedule alone. Both kinds count toward cfg.MaxRateLimitRetries, past
// which *orcherrors.RateLimited is returned. Any other error is retried
// per the backoff policy until MaxElapsedTime, then returned.
func RunWithResilience(ctx context.Context, r Runner, req Request, logw io.Writer, cb *gobreaker.CircuitBreaker, cfg RetryConfig) (Result, error) {
	const maxRateLimitSleep = 5 * time.Minute

	var result Result
	rateLimitAttempts := 0

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := cb.Execute(func() (interface{}, error) {
			return r.Run(ctx, req, logw)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			if rl := Detect(err.Error(), ""); rl != nil {
				rateLimitAttempts++
				if rateLimitAttempts > cfg.MaxRateLimitRetries {
					return backoff.Permanent(&orcherrors.RateLimited{
						Provider:   string(req.Model),
						RetryAfter: rl.RetryAfter,
						Reason:     "exceeded max rate-limit retries",
					})
				}
				sleep := CapRetryAfter(rl.RetryAfter, maxRateLimitSleep)
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return err
		}

		result = out.(Result)
		if rl := Detect("", result.Content); rl != nil {
			rateLimitAttempts++
			if rateLimitAttempts > cfg.MaxRateLimitRetries {
				return backoff.Permanent(&orcherrors.RateLimited{
					Provider:   string(req.Model),
					RetryAfter: rl.RetryAfter,
					Reason:     "rate limit phrase detected in final response",
				})
			}
			return errors.New("agent: rate limit phrase detected in response")
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = cfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return result, err
}
