// Package ratelimit provides per-source token-bucket limiters, sized to
// each vendor's documented request budget. Adapters block on the limiter
// rather than firing a request and retrying on 429.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Registry owns one limiter per named external source.
type Registry struct {
	limiters map[string]*rate.Limiter
}

// NewRegistry returns an empty Registry; limiters are added per source
// with Register(source, requestsPerSecond, burst).
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter)}
}

// Register installs a limiter for source, replacing any existing one.
func (r *Registry) Register(source string, rps float64, burst int) {
	r.limiters[source] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until source's limiter admits one request, or ctx is done.
// Sources with no registered limiter proceed unthrottled.
func (r *Registry) Wait(ctx context.Context, source string) error {
	l, ok := r.limiters[source]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
