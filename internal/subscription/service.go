package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/plans"
)

// PlanResolver resolves plans by name. *plans.Catalog satisfies it.
type PlanResolver interface {
	GetByName(ctx context.Context, name string) (*plans.Plan, error)
}

// PlanChangeGuard vetoes plan changes, e.g. a downgrade below current usage.
type PlanChangeGuard interface {
	CanChangePlan(ctx context.Context, tenantID string, target *plans.Plan) error
}

// Service manages the subscription lifecycle.
type Service struct {
	store  Store
	plans  PlanResolver
	guard  PlanChangeGuard
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a subscription service.
func NewService(store Store, resolver PlanResolver, opts ...Option) *Service {
	s := &Service{
		store:  store,
		plans:  resolver,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPlanChangeGuard installs the guard consulted by ChangePlan. It is set
// after construction because the guard itself reads subscriptions.
func (s *Service) SetPlanChangeGuard(g PlanChangeGuard) {
	s.guard = g
}

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// Create binds tenantID to planName with status active, a start date of
// today (UTC) and a snapshot of the plan's caps.
func (s *Service) Create(ctx context.Context, actor auth.Principal, tenantID, planName string) (*Subscription, error) {
	if !actor.CanManageCatalog() {
		return nil, auth.ErrForbidden
	}
	plan, err := s.offeredPlan(ctx, planName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &Subscription{
		TenantID:  tenantID,
		PlanName:  plan.Name,
		Status:    StatusActive,
		StartDate: startDate(now),
		Caps:      plans.CloneCaps(plan.Caps),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created", "tenant", tenantID, "plan", plan.Name, "actor", actor.Subject)
	return sub, nil
}

// SetStatus moves a subscription between active and suspended. Setting
// the current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, actor auth.Principal, tenantID string, status Status) (*Subscription, error) {
	if !actor.CanManageCatalog() {
		return nil, auth.ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	sub, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.Status == status {
		return sub, nil
	}

	prev := sub.Status
	sub.Status = status
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription status changed",
		"tenant", tenantID, "from", prev, "to", status, "actor", actor.Subject)
	return sub, nil
}

// ChangePlan rebinds the subscription to planName and refreshes the caps
// snapshot. The guard, when installed, may refuse the change.
func (s *Service) ChangePlan(ctx context.Context, actor auth.Principal, tenantID, planName string) (*Subscription, error) {
	if !actor.CanManageCatalog() {
		return nil, auth.ErrForbidden
	}
	sub, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan, err := s.offeredPlan(ctx, planName)
	if err != nil {
		return nil, err
	}
	if sub.PlanName == plan.Name {
		return sub, nil
	}
	if s.guard != nil {
		if err := s.guard.CanChangePlan(ctx, tenantID, plan); err != nil {
			return nil, err
		}
	}

	prev := sub.PlanName
	sub.PlanName = plan.Name
	sub.Caps = plans.CloneCaps(plan.Caps)
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription plan changed",
		"tenant", tenantID, "from", prev, "to", plan.Name, "actor", actor.Subject)
	return sub, nil
}

// GetActive returns the tenant's active subscription. It returns (nil, nil)
// when the tenant has no subscription or it is suspended; an error means
// the store could not be read.
func (s *Service) GetActive(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription for %s: %w", tenantID, err)
	}
	if !sub.Active() {
		return nil, nil
	}
	return sub, nil
}

// Get returns the tenant's subscription regardless of status.
func (s *Service) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.store.Get(ctx, tenantID)
}

// ListActive returns every active subscription.
func (s *Service) ListActive(ctx context.Context) ([]*Subscription, error) {
	return s.store.ListActive(ctx)
}

// Delete removes the tenant's subscription. Absent subscriptions are not
// an error, so whole-tenant deletion can be retried.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, tenantID string) error {
	if !actor.CanManageCatalog() {
		return auth.ErrForbidden
	}
	err := s.store.Delete(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}
	return nil
}

// CountByPlan reports how many subscriptions reference planName.
func (s *Service) CountByPlan(ctx context.Context, planName string) (int, error) {
	return s.store.CountByPlan(ctx, planName)
}

func (s *Service) offeredPlan(ctx context.Context, name string) (*plans.Plan, error) {
	plan, err := s.plans.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if plan.Deprecated() {
		return nil, fmt.Errorf("%w: %s is no longer offered", plans.ErrPlanNotFound, plan.Name)
	}
	return plan, nil
}
