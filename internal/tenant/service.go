package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/idgen"
	"github.com/mbd888/fieldwork/internal/metrics"
	"github.com/mbd888/fieldwork/internal/subscription"
	"github.com/mbd888/fieldwork/internal/validation"
)

// Subscriptions is the subset of *subscription.Service used here.
type Subscriptions interface {
	Create(ctx context.Context, actor auth.Principal, tenantID, planName string) (*subscription.Subscription, error)
	Delete(ctx context.Context, actor auth.Principal, tenantID string) error
}

// Resources removes a tenant's resource rows. *resources.Service satisfies it.
type Resources interface {
	DeleteTenant(ctx context.Context, actor auth.Principal, tenantID string) error
}

// Keys issues and removes tenant API keys. *auth.Manager satisfies it.
type Keys interface {
	GenerateKey(ctx context.Context, actor auth.Principal, tenantID string, role auth.Role, name string) (string, *auth.APIKey, error)
	DeleteTenantKeys(ctx context.Context, tenantID string) error
}

// Onboarding is the result of Onboard. APIKey is shown once.
type Onboarding struct {
	Tenant       *Tenant                    `json:"tenant"`
	Subscription *subscription.Subscription `json:"subscription"`
	APIKey       string                     `json:"apiKey,omitempty"`
	KeyID        string                     `json:"keyId,omitempty"`
	Warning      string                     `json:"warning,omitempty"`
}

// Service runs tenant onboarding and deletion.
type Service struct {
	store     Store
	subs      Subscriptions
	resources Resources
	keys      Keys
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithKeys enables minting a tenant-admin key during onboarding and key
// cleanup during deletion.
func WithKeys(k Keys) Option {
	return func(s *Service) { s.keys = k }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a tenant service.
func NewService(store Store, subs Subscriptions, res Resources, opts ...Option) *Service {
	s := &Service{
		store:     store,
		subs:      subs,
		resources: res,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Onboard creates a tenant subscribed to planName. If the subscription
// cannot be created the tenant is removed again.
func (s *Service) Onboard(ctx context.Context, actor auth.Principal, name, slug, planName string) (*Onboarding, error) {
	if !actor.IsSuperAdmin() {
		return nil, auth.ErrForbidden
	}
	name = validation.SanitizeString(name, validation.MaxNameLength)
	slug = validation.NormalizeSlug(slug)
	if errs := validation.Validate(
		validation.Required("name", name),
		validation.Required("slug", slug),
		validation.Slug("slug", slug),
		validation.Required("plan", planName),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTenant, errs.Error())
	}

	now := s.now().UTC()
	t := &Tenant{
		ID:        idgen.New(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	sub, err := s.subs.Create(ctx, actor, t.ID, planName)
	if err != nil {
		if rbErr := s.store.Delete(ctx, t.ID); rbErr != nil {
			s.logger.Error("failed to roll back tenant after subscription error",
				"tenant", t.ID, "error", rbErr)
		}
		return nil, err
	}

	out := &Onboarding{Tenant: t, Subscription: sub}
	if s.keys != nil {
		raw, key, err := s.keys.GenerateKey(ctx, actor, t.ID, auth.RoleTenantAdmin, "Tenant admin key")
		if err != nil {
			s.logger.Warn("tenant admin key generation failed", "tenant", t.ID, "error", err)
			out.Warning = "Tenant created but admin key generation failed. Use the admin API to create keys."
		} else {
			out.APIKey = raw
			out.KeyID = key.ID
			out.Warning = "Store this API key securely. It will not be shown again."
		}
	}

	metrics.TenantsOnboardedTotal.WithLabelValues(sub.PlanName).Inc()
	s.logger.Info("tenant onboarded", "tenant", t.ID, "slug", t.Slug, "plan", sub.PlanName, "actor", actor.Subject)
	return out, nil
}

// Delete removes a tenant with its resources, subscription and keys. The
// tenant row goes last so a failed deletion can be retried.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, tenantID string) error {
	if !actor.IsSuperAdmin() {
		return auth.ErrForbidden
	}
	if _, err := s.store.Get(ctx, tenantID); err != nil {
		return err
	}

	if err := s.resources.DeleteTenant(ctx, actor, tenantID); err != nil {
		return fmt.Errorf("delete resources: %w", err)
	}
	if err := s.subs.Delete(ctx, actor, tenantID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if s.keys != nil {
		if err := s.keys.DeleteTenantKeys(ctx, tenantID); err != nil {
			return fmt.Errorf("delete api keys: %w", err)
		}
	}
	if err := s.store.Delete(ctx, tenantID); err != nil {
		return err
	}

	s.logger.Info("tenant deleted", "tenant", tenantID, "actor", actor.Subject)
	return nil
}

// Get returns a tenant the actor may access.
func (s *Service) Get(ctx context.Context, actor auth.Principal, tenantID string) (*Tenant, error) {
	if !actor.CanAccessTenant(tenantID) {
		return nil, auth.ErrForbidden
	}
	return s.store.Get(ctx, tenantID)
}

// List returns every tenant, oldest first.
func (s *Service) List(ctx context.Context, actor auth.Principal) ([]*Tenant, error) {
	if !actor.IsSuperAdmin() {
		return nil, auth.ErrForbidden
	}
	return s.store.List(ctx)
}
