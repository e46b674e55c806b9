// Package entitlement decides whether a tenant may create another resource
// of a category under its plan.
//
// The gate is fail-closed: a data access failure denies with a generic
// message and the cause is only logged. The usage counter has its own,
// independent failure policy (see package usage).
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
	"github.com/mbd888/fieldwork/internal/traces"
)

// CapSource selects where caps are read from.
type CapSource string

const (
	// CapSourceLive resolves the plan by name on every check, so catalog
	// edits apply immediately.
	CapSourceLive CapSource = "live"
	// CapSourceSnapshot uses the caps copied into the subscription when the
	// plan was bound.
	CapSourceSnapshot CapSource = "snapshot"
)

// Valid reports whether s is a known cap source.
func (s CapSource) Valid() bool {
	return s == CapSourceLive || s == CapSourceSnapshot
}

// Subscriptions reads a tenant's active subscription.
type Subscriptions interface {
	GetActive(ctx context.Context, tenantID string) (*subscription.Subscription, error)
}

// PlanResolver resolves plans by name.
type PlanResolver interface {
	GetByName(ctx context.Context, name string) (*plans.Plan, error)
}

// UsageCounter reports current usage.
type UsageCounter interface {
	CountResources(ctx context.Context, tenantID string, category plans.Category) (int64, error)
}

// Gate evaluates entitlement checks. It holds no mutable state and is safe
// for concurrent use.
type Gate struct {
	subs      Subscriptions
	plans     PlanResolver
	counter   UsageCounter
	capSource CapSource
	logger    *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithCapSource selects live or snapshot caps. Unknown values are ignored.
func WithCapSource(s CapSource) Option {
	return func(g *Gate) {
		if s.Valid() {
			g.capSource = s
		}
	}
}

// WithLogger sets the fallback logger; a request-scoped logger in the
// context takes precedence.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate.
func NewGate(subs Subscriptions, resolver PlanResolver, counter UsageCounter, opts ...Option) *Gate {
	g := &Gate{
		subs:      subs,
		plans:     resolver,
		counter:   counter,
		capSource: CapSourceLive,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CapSource returns the configured cap source.
func (g *Gate) CapSource() CapSource { return g.capSource }

// Check reports whether tenantID may create one more resource of category,
// with a user-facing message. category may be a cap key or its noun.
func (g *Gate) Check(ctx context.Context, tenantID, category string) (bool, string) {
	cat, ok := plans.ParseCategory(category)
	if !ok {
		cat = plans.Category(category)
	}
	v := g.CheckLimit(ctx, tenantID, cat)
	return v.Allowed, v.Message
}

// CheckLimit counts current usage and evaluates it against the tenant's
// cap for category.
func (g *Gate) CheckLimit(ctx context.Context, tenantID string, category plans.Category) Verdict {
	return g.observe(ctx, tenantID, category, func(ctx context.Context) Verdict {
		limit, plan, denied := g.resolve(ctx, tenantID, category)
		if denied != nil {
			return *denied
		}
		current, err := g.counter.CountResources(ctx, tenantID, category)
		if err != nil {
			return g.failure(ctx, tenantID, category, "count usage", err)
		}
		return decide(plan, category, limit, current)
	})
}

// Evaluate applies the same decision as CheckLimit to a caller-supplied
// count.
func (g *Gate) Evaluate(ctx context.Context, tenantID string, category plans.Category, current int64) Verdict {
	return g.Resolve(ctx, tenantID, category).Decide(ctx, current)
}

// Admission is a tenant's resolved cap for one category. Deciding against
// it does no further reads, so a caller can resolve before taking a lock
// or a pooled connection and decide while holding it.
type Admission struct {
	gate     *Gate
	tenantID string
	category plans.Category
	plan     string
	limit    int64
	denied   *Verdict
}

// Resolve reads the tenant's subscription and the cap for category.
func (g *Gate) Resolve(ctx context.Context, tenantID string, category plans.Category) *Admission {
	a := &Admission{gate: g, tenantID: tenantID, category: category}
	a.limit, a.plan, a.denied = g.resolve(ctx, tenantID, category)
	return a
}

// Denied reports whether resolution already decided the check, in which
// case Decide denies whatever count it is given.
func (a *Admission) Denied() bool { return a.denied != nil }

// Decide compares current against the resolved cap.
func (a *Admission) Decide(ctx context.Context, current int64) Verdict {
	return a.gate.observe(ctx, a.tenantID, a.category, func(context.Context) Verdict {
		if a.denied != nil {
			return *a.denied
		}
		return decide(a.plan, a.category, a.limit, current)
	})
}

func decide(plan string, category plans.Category, limit, current int64) Verdict {
	v := Verdict{Plan: plan, Category: category, Cap: limit, Current: current}
	if current >= limit {
		v.Reason = ReasonLimitReached
		v.Message = limitMessage(plan, category, limit, current)
		return v
	}
	v.Allowed = true
	v.Reason = ReasonOK
	v.Message = MsgOK
	return v
}

// resolve finds the cap that applies to tenantID and category. A non-nil
// verdict means the check is already decided.
func (g *Gate) resolve(ctx context.Context, tenantID string, category plans.Category) (limit int64, plan string, denied *Verdict) {
	sub, err := g.subs.GetActive(ctx, tenantID)
	if err != nil {
		v := g.failure(ctx, tenantID, category, "read subscription", err)
		return 0, "", &v
	}
	if sub == nil {
		v := deny(ReasonNoActiveSubscription, MsgNoActiveSubscription, category)
		return 0, "", &v
	}
	if !category.Valid() {
		v := deny(ReasonUnknownCategory, MsgUnknownCategory, category)
		v.Plan = sub.PlanName
		return 0, sub.PlanName, &v
	}

	var ok bool
	switch g.capSource {
	case CapSourceSnapshot:
		limit, ok = sub.Caps[category]
	default:
		p, err := g.plans.GetByName(ctx, sub.PlanName)
		if errors.Is(err, plans.ErrPlanNotFound) {
			g.log(ctx).Error("subscription references a missing plan",
				"tenant", tenantID, "plan", sub.PlanName)
			v := deny(ReasonPlanUnavailable, MsgPlanUnavailable, category)
			v.Plan = sub.PlanName
			return 0, sub.PlanName, &v
		}
		if err != nil {
			v := g.failure(ctx, tenantID, category, "resolve plan", err)
			return 0, "", &v
		}
		limit, ok = p.Cap(category)
	}
	if !ok {
		v := deny(ReasonUnknownCategory, MsgUnknownCategory, category)
		v.Plan = sub.PlanName
		return 0, sub.PlanName, &v
	}
	return limit, sub.PlanName, nil
}

func (g *Gate) failure(ctx context.Context, tenantID string, category plans.Category, op string, err error) Verdict {
	g.log(ctx).Error("entitlement check failed",
		"op", op, "tenant", tenantID, "category", string(category), "error", err)
	return deny(ReasonDataAccessFailure, MsgTemporarilyDown, category)
}

func (g *Gate) observe(ctx context.Context, tenantID string, category plans.Category, fn func(context.Context) Verdict) Verdict {
	ctx, span := traces.StartSpan(ctx, "entitlement.check",
		traces.TenantID(tenantID), traces.Category(string(category)))
	defer span.End()

	start := time.Now()
	v := fn(ctx)
	checkDuration.Observe(time.Since(start).Seconds())
	checksTotal.WithLabelValues(categoryLabel(category), string(v.Reason)).Inc()

	span.SetAttributes(traces.Allowed(v.Allowed), traces.Reason(string(v.Reason)))
	if v.Plan != "" {
		span.SetAttributes(traces.Plan(v.Plan))
	}
	return v
}

func (g *Gate) log(ctx context.Context) *slog.Logger {
	if logging.RequestID(ctx) != "" {
		return logging.L(ctx)
	}
	return g.logger
}

// HasModule reports whether the tenant's active plan enables module. Any
// failure answers false.
func (g *Gate) HasModule(ctx context.Context, tenantID, module string) bool {
	sub, err := g.subs.GetActive(ctx, tenantID)
	if err != nil {
		g.log(ctx).Error("module check failed", "tenant", tenantID, "module", module, "error", err)
		return false
	}
	if sub == nil {
		return false
	}
	p, err := g.plans.GetByName(ctx, sub.PlanName)
	if err != nil {
		g.log(ctx).Error("module check failed", "tenant", tenantID, "module", module, "error", err)
		return false
	}
	return p.HasModule(module)
}

// Usage reports current usage against caps for every category.
func (g *Gate) Usage(ctx context.Context, tenantID string) (map[plans.Category]UsageInfo, error) {
	sub, err := g.subs.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}
	caps, err := g.caps(ctx, sub)
	if err != nil {
		return nil, err
	}

	out := make(map[plans.Category]UsageInfo, len(plans.Categories))
	for _, cat := range plans.Categories {
		current, err := g.counter.CountResources(ctx, tenantID, cat)
		if err != nil {
			return nil, err
		}
		out[cat] = newUsageInfo(current, caps[cat])
	}
	return out, nil
}

// CanChangePlan refuses a move to target when the tenant already holds more
// of some category than target allows.
func (g *Gate) CanChangePlan(ctx context.Context, tenantID string, target *plans.Plan) error {
	for _, cat := range plans.Categories {
		current, err := g.counter.CountResources(ctx, tenantID, cat)
		if err != nil {
			return err
		}
		limit, _ := target.Cap(cat)
		if current > limit {
			return fmt.Errorf("%w: plan %s allows %d %s, you have %d",
				ErrDowngradeNotPossible, target.Name, limit, cat.Noun(), current)
		}
	}
	return nil
}

func (g *Gate) caps(ctx context.Context, sub *subscription.Subscription) (map[plans.Category]int64, error) {
	if g.capSource == CapSourceSnapshot {
		return plans.CloneCaps(sub.Caps), nil
	}
	p, err := g.plans.GetByName(ctx, sub.PlanName)
	if err != nil {
		return nil, err
	}
	return plans.CloneCaps(p.Caps), nil
}

var _ subscription.PlanChangeGuard = (*Gate)(nil)
