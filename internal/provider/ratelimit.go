package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit makes callers of p wait so that at most perMinute calls start
// each minute
func WithRateLimit(p Provider, perMinute int) Provider {
	return &limited{
		next:    p,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", &Error{Backend: l.next.Name(), Op: "rate limit", Err: err}
	}
	return l.next.Complete(ctx, req)
}
