// Package orchestrator wraps the critical mutating endpoints with uniform
// cross-cutting policy: auth precondition, per-route rate limiting,
// single-flight deduplication, priority-ordered admission and
// backoff-and-retry for transient failures.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/pkg/logger"
)

// Request is the transport-independent view of one inbound call. CallerID is
// empty when the auth resolver could not attach an identity.
type Request struct {
	Method   string
	CallerID string
	Payload  json.RawMessage
}

// Handler is the wrapped business logic. It must be safe to invoke more than
// once for the same request: the orchestrator retries transient failures.
type Handler func(ctx context.Context, req Request) (interface{}, error)

// RouteConfig is the per-route policy, usually loaded from configuration.
type RouteConfig struct {
	Route       string
	Priority    Priority
	MaxRetries  int
	RequireAuth bool
	Timeout     time.Duration // per attempt; zero means the orchestrator default
	RateLimit   RatePolicy    // zero ceiling means the orchestrator default
}

// Options tunes one orchestrator instance.
type Options struct {
	// MaxConcurrent is the handler concurrency budget shared by all routes.
	MaxConcurrent int
	// BaseBackoff is the first retry delay; doubled each attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// DefaultTimeout bounds a single handler attempt.
	DefaultTimeout time.Duration
	// DefaultRate applies to routes without an explicit policy.
	DefaultRate RatePolicy
	Logger      *logger.Logger
	Metrics     *Metrics
}

// DefaultOptions returns the documented defaults. Ceilings and windows are
// configuration inputs, not constants baked into call sites.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:  64,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		DefaultTimeout: 10 * time.Second,
		DefaultRate:    RatePolicy{Ceiling: 20, Window: time.Minute},
	}
}

// Orchestrator applies the cross-cutting policy. One instance is constructed
// at startup and handed to the HTTP layer; there is no global lookup.
type Orchestrator struct {
	opts    Options
	limiter *windowLimiter
	gate    *admissionGate
	flight  singleflight.Group
	log     *logger.Logger

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an orchestrator from options; zero fields fall back to
// DefaultOptions values.
func New(opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = def.DefaultTimeout
	}
	if opts.DefaultRate.Ceiling <= 0 || opts.DefaultRate.Window <= 0 {
		opts.DefaultRate = def.DefaultRate
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("orchestrator")
	}
	return &Orchestrator{
		opts:    opts,
		limiter: newWindowLimiter(),
		gate:    newAdmissionGate(opts.MaxConcurrent),
		log:     opts.Logger,
		sleep:   sleepCtx,
	}
}

// Execute runs the handler under the route policy. On success the handler
// result passes through unchanged; on failure the returned error is always an
// *apperr.Error.
func (o *Orchestrator) Execute(ctx context.Context, req Request, cfg RouteConfig, handler Handler) (interface{}, error) {
	start := time.Now()

	if cfg.RequireAuth && req.CallerID == "" {
		o.opts.Metrics.observeOutcome(cfg.Route, "unauthenticated", time.Since(start).Seconds())
		return nil, apperr.Unauthenticated("")
	}

	policy := cfg.RateLimit
	if policy.Ceiling <= 0 || policy.Window <= 0 {
		policy = o.opts.DefaultRate
	}
	if ok, retryAfter := o.limiter.allow(cfg.Route, callerBucket(req.CallerID), policy); !ok {
		o.opts.Metrics.observeRateLimited(cfg.Route)
		o.opts.Metrics.observeOutcome(cfg.Route, "rate_limited", time.Since(start).Seconds())
		return nil, apperr.RateLimited(retryAfter)
	}

	key := dedupeKey(cfg.Route, req)
	result, err, shared := o.flight.Do(key, func() (interface{}, error) {
		return o.run(ctx, req, cfg, handler)
	})
	if shared {
		o.opts.Metrics.observeDeduped(cfg.Route)
	}

	if err != nil {
		ae := apperr.From(err)
		if ae.Kind == apperr.KindUnknown {
			o.log.WithError(err).
				WithField("route", cfg.Route).
				WithField("caller", callerBucket(req.CallerID)).
				Error("unclassified handler failure")
		}
		o.opts.Metrics.observeOutcome(cfg.Route, string(ae.Kind), time.Since(start).Seconds())
		return nil, ae
	}

	o.opts.Metrics.observeOutcome(cfg.Route, "success", time.Since(start).Seconds())
	return result, nil
}

// run holds the admission + retry loop. Attempts execute on a context
// detached from the inbound connection so a dropped client cannot interrupt
// a write mid-flight; each attempt is still bounded by the route timeout.
func (o *Orchestrator) run(ctx context.Context, req Request, cfg RouteConfig, handler Handler) (interface{}, error) {
	if err := o.gate.acquire(ctx, cfg.Priority); err != nil {
		return nil, apperr.From(err)
	}
	defer o.gate.release()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.opts.DefaultTimeout
	}
	detached := context.WithoutCancel(ctx)

	var lastErr *apperr.Error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			o.opts.Metrics.observeRetry(cfg.Route)
			if err := o.sleep(detached, o.backoff(attempt)); err != nil {
				return nil, apperr.From(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(detached, timeout)
		result, err := handler(attemptCtx, req)
		cancel()

		if err == nil {
			return result, nil
		}

		ae := apperr.From(err)
		if !ae.Retryable() {
			return nil, ae
		}
		lastErr = ae
		o.log.WithError(ae).
			WithField("route", cfg.Route).
			WithField("attempt", attempt).
			Warn("transient handler failure")
	}
	return nil, lastErr
}

// backoff computes the delay before the given attempt (attempt >= 1),
// base * 2^(attempt-1), capped.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.opts.BaseBackoff << uint(attempt-1)
	if d > o.opts.MaxBackoff || d <= 0 {
		d = o.opts.MaxBackoff
	}
	return d
}

// dedupeKey derives the single-flight key from route, caller and payload
// hash, so double-submitted forms coalesce but distinct payloads do not.
func dedupeKey(route string, req Request) string {
	sum := sha256.Sum256(req.Payload)
	return route + "|" + callerBucket(req.CallerID) + "|" + hex.EncodeToString(sum[:])
}

func callerBucket(callerID string) string {
	if callerID == "" {
		return "anon"
	}
	return callerID
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
