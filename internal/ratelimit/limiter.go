// Package ratelimit throttles tool calls with per-tool token buckets.
// file: internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/value"
	"golang.org/x/time/rate"
)

// ErrRateLimited indicates the caller exceeded the configured rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitedMessage is the text of the error result returned for a throttled call.
const LimitedMessage = "Rate limit exceeded"

// Config contains parameters for limiter construction.
type Config struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	enabled bool
	rps     float64
	burst   int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter. A disabled limiter allows everything.
func New(cfg Config) *Limiter {
	if !cfg.Enabled {
		return &Limiter{}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	return &Limiter{
		enabled: true,
		rps:     cfg.RequestsPerSecond,
		burst:   cfg.Burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow returns ErrRateLimited if key has no token left.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if !l.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.bucket(key).Allow() {
		return errors.Wrapf(ErrRateLimited, "key %q", key)
	}
	return nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if b == nil {
		limit := rate.Inf
		if l.rps > 0 {
			limit = rate.Limit(l.rps)
		}
		b = rate.NewLimiter(limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Middleware throttles each tool by name. A throttled call returns an error
// wrapping ErrRateLimited without reaching the handler.
func (l *Limiter) Middleware() mcptypes.ToolMiddleware {
	return func(next mcptypes.ToolHandler) mcptypes.ToolHandler {
		if !l.Enabled() {
			return next
		}
		return func(ctx context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
			if err := l.Allow(ctx, mcptypes.ToolNameFromContext(ctx)); err != nil {
				return nil, err
			}
			return next(ctx, args)
		}
	}
}
