// Package usage counts the resources a tenant currently holds per category.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbd888/fieldwork/internal/circuitbreaker"
	"github.com/mbd888/fieldwork/internal/plans"
)

var (
	ErrCountFailed     = errors.New("usage: count failed")
	ErrUnknownCategory = errors.New("usage: unknown category")
	ErrNoCounter       = errors.New("usage: no counter for category")
)

// Policy decides what a failed count reports.
type Policy string

const (
	// PolicyPermissive logs the failure and reports zero usage, so the
	// caller is allowed through.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict returns an error wrapping ErrCountFailed.
	PolicyStrict Policy = "strict"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyPermissive || p == PolicyStrict
}

// Source counts stored resources. The resources stores implement it.
type Source interface {
	Count(ctx context.Context, tenantID string, category plans.Category) (int64, error)
}

// CounterFunc counts one category for a tenant.
type CounterFunc func(ctx context.Context, tenantID string) (int64, error)

// Registry maps categories to counters. Registered counters take
// precedence over the Counter's Source.
type Registry struct {
	mu       sync.RWMutex
	counters map[plans.Category]CounterFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[plans.Category]CounterFunc)}
}

// Register installs fn for category, replacing any previous counter.
func (r *Registry) Register(category plans.Category, fn CounterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[category] = fn
}

// Lookup returns the counter for category.
func (r *Registry) Lookup(category plans.Category) (CounterFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.counters[category]
	return fn, ok
}

// Counter reports current usage under a failure policy.
type Counter struct {
	source   Source
	registry *Registry
	policy   Policy
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithPolicy sets the failure policy. Unknown values are ignored.
func WithPolicy(p Policy) Option {
	return func(c *Counter) {
		if p.Valid() {
			c.policy = p
		}
	}
}

// WithRegistry installs per-category counters.
func WithRegistry(r *Registry) Option {
	return func(c *Counter) { c.registry = r }
}

// WithBreaker guards each category's count with b. While a category's
// circuit is open its counts fail immediately and the policy applies.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Counter) { c.breaker = b }
}

// WithLogger sets the counter logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) { c.logger = l }
}

// NewCounter creates a Counter over source. source may be nil when every
// category is served by the registry.
func NewCounter(source Source, opts ...Option) *Counter {
	c := &Counter{
		source: source,
		policy: PolicyPermissive,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the configured failure policy.
func (c *Counter) Policy() Policy { return c.policy }

// CountResources returns how many resources of category tenantID holds
// (for storage, the total megabytes). Under PolicyPermissive a failed count
// is logged and reported as 0.
func (c *Counter) CountResources(ctx context.Context, tenantID string, category plans.Category) (int64, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	n, err := c.count(ctx, tenantID, category)
	if err == nil {
		return n, nil
	}

	countFailures.WithLabelValues(string(category), string(c.policy)).Inc()
	if c.policy == PolicyStrict {
		return 0, fmt.Errorf("%w: %s for tenant %s: %w", ErrCountFailed, category, tenantID, err)
	}
	c.logger.Warn("usage count failed, reporting zero",
		"tenant", tenantID, "category", string(category), "error", err)
	return 0, nil
}

func (c *Counter) count(ctx context.Context, tenantID string, category plans.Category) (int64, error) {
	if c.breaker == nil {
		return c.countOnce(ctx, tenantID, category)
	}
	return circuitbreaker.Do(c.breaker, string(category), func() (int64, error) {
		return c.countOnce(ctx, tenantID, category)
	})
}

func (c *Counter) countOnce(ctx context.Context, tenantID string, category plans.Category) (int64, error) {
	if fn, ok := c.registry.Lookup(category); ok {
		return fn(ctx, tenantID)
	}
	if c.source == nil {
		return 0, ErrNoCounter
	}
	return c.source.Count(ctx, tenantID, category)
}

// Snapshot counts every category. Failures follow the policy; under
// PolicyStrict the first failure is returned.
func (c *Counter) Snapshot(ctx context.Context, tenantID string) (map[plans.Category]int64, error) {
	out := make(map[plans.Category]int64, len(plans.Categories))
	for _, cat := range plans.Categories {
		n, err := c.CountResources(ctx, tenantID, cat)
		if err != nil {
			return nil, err
		}
		out[cat] = n
	}
	return out, nil
}
