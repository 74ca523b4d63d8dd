package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Policy bundles the request ceiling and retry schedule for one external
// service. Every attempt, retries included, waits on the limiter first.
type Policy struct {
	Service string
	Limiter *rate.Limiter
	Retry   RetryConfig
}

// NewPolicy builds a policy allowing rps requests per second with a burst of
// one. rps <= 0 disables rate limiting.
func NewPolicy(service string, rps float64, retry RetryConfig) Policy {
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return Policy{Service: service, Limiter: lim, Retry: retry}
}

// Every is a convenience for limits expressed as a minimum gap between calls.
func Every(d time.Duration) float64 {
	return float64(rate.Every(d))
}

// Call runs fn under p: rate limited, retried on transient errors, and logged
// on retry under operation.
func Call[T any](ctx context.Context, p Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := p.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(p.Service, operation)
	}
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "%s: rate limit wait", p.Service)
			}
		}
		return fn(ctx)
	})
}
