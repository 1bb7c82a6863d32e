package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSafetyMargin is how long before expiry a bundle stops being served.
	DefaultSafetyMargin = 5 * time.Minute
	// DefaultRefreshTimeout bounds a single issuance call.
	DefaultRefreshTimeout = 30 * time.Second

	refreshKey = "refresh"
)

// Recorder observes refresh outcomes.
type Recorder interface {
	ObserveCredentialRefresh(outcome string, d time.Duration)
}

type settings struct {
	margin         time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger
	recorder       Recorder
	now            func() time.Time
}

// Option configures a Cache.
type Option func(*settings)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.margin = d
		}
	}
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRecorder reports refresh outcomes, e.g. to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

type entry[C any] struct {
	bundle Bundle
	client C
}

// Cache serves a bundle and its dependent client, refreshing them when the
// bundle is absent or within the safety margin of its expiry. Concurrent
// refreshes are coalesced into one issuance call.
type Cache[C any] struct {
	issuer  Issuer
	factory ClientFactory[C]
	settings

	group   singleflight.Group
	current atomic.Pointer[entry[C]]

	mu         sync.Mutex // serialises publish against Clear
	generation uint64
}

// New returns an empty cache. Nothing is issued until the first call.
func New[C any](issuer Issuer, factory ClientFactory[C], opts ...Option) *Cache[C] {
	s := settings{
		margin:         DefaultSafetyMargin,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, o := range opts {
		o(&s)
	}
	s.logger = s.logger.With("component", "credential-cache")
	return &Cache[C]{issuer: issuer, factory: factory, settings: s}
}

// Bundle returns a bundle valid for at least the safety margin.
func (c *Cache[C]) Bundle(ctx context.Context) (Bundle, error) {
	e, err := c.get(ctx)
	if err != nil {
		return Bundle{}, err
	}
	return e.bundle, nil
}

// Client returns the signing client built from the current bundle.
func (c *Cache[C]) Client(ctx context.Context) (C, error) {
	e, err := c.get(ctx)
	if err != nil {
		var zero C
		return zero, err
	}
	return e.client, nil
}

// Expiry reports the expiry of the held bundle, or the zero time.
func (c *Cache[C]) Expiry() time.Time {
	if e := c.current.Load(); e != nil {
		return e.bundle.ExpiresAt
	}
	return time.Time{}
}

// Clear drops the bundle and client. A refresh already in flight still
// answers its own waiters but does not republish.
func (c *Cache[C]) Clear() {
	c.mu.Lock()
	c.generation++
	c.current.Store(nil)
	c.mu.Unlock()
	c.group.Forget(refreshKey)
	c.logger.Debug("Credentials cleared")
}

func (c *Cache[C]) fresh(e *entry[C]) bool {
	return e != nil && c.now().Before(e.bundle.ExpiresAt.Add(-c.margin))
}

func (c *Cache[C]) get(ctx context.Context) (*entry[C], error) {
	if e := c.current.Load(); c.fresh(e) {
		return e, nil
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	// The issuance call must outlive any single waiter.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.refresh(refreshCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry[C]), nil
	}
}

func (c *Cache[C]) refresh(ctx context.Context, gen uint64) (*entry[C], error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	start := c.now()
	c.logger.Debug("Refreshing storage credentials")

	e, err := c.issue(ctx)
	if err != nil {
		c.observe("failure", start)
		c.logger.Warn("Credential refresh failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.current.Store(e)
	}
	published := c.generation == gen
	c.mu.Unlock()

	c.observe("success", start)
	c.logger.Info("Storage credentials refreshed", "bundle", e.bundle, "published", published)
	if !c.now().Before(e.bundle.ExpiresAt.Add(-c.margin)) {
		c.logger.Warn("Issued credentials expire within the safety margin",
			"expires_at", e.bundle.ExpiresAt, "margin", c.margin)
	}
	return e, nil
}

func (c *Cache[C]) issue(ctx context.Context) (*entry[C], error) {
	b, err := c.issuer.IssueCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	client, err := c.factory(b)
	if err != nil {
		return nil, fmt.Errorf("build signing client: %w", err)
	}
	return &entry[C]{bundle: b, client: client}, nil
}

func (c *Cache[C]) observe(outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveCredentialRefresh(outcome, c.now().Sub(start))
	}
}
