package resources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/idgen"
	"github.com/mbd888/fieldwork/internal/metrics"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/traces"
	"github.com/mbd888/fieldwork/internal/validation"
)

// Mode is the enforcement mode for creation.
type Mode string

const (
	// ModeSoft checks the gate, then inserts separately. Concurrent
	// creators can both pass the check; the audit reports the overshoot.
	ModeSoft Mode = "soft"
	// ModeAtomic counts, checks and inserts under a per-tenant,
	// per-category lock. At most one creator takes the last slot.
	ModeAtomic Mode = "atomic"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSoft || m == ModeAtomic
}

// Gate is the subset of *entitlement.Gate used here.
type Gate interface {
	CheckLimit(ctx context.Context, tenantID string, category plans.Category) entitlement.Verdict
	Resolve(ctx context.Context, tenantID string, category plans.Category) *entitlement.Admission
}

// Service runs resource workflows.
type Service struct {
	store  Store
	gate   Gate
	mode   Mode
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMode sets the enforcement mode. Unknown values are ignored.
func WithMode(m Mode) Option {
	return func(s *Service) {
		if m.Valid() {
			s.mode = m
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a resource service.
func NewService(store Store, gate Gate, opts ...Option) *Service {
	s := &Service{
		store:  store,
		gate:   gate,
		mode:   ModeSoft,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the enforcement mode.
func (s *Service) Mode() Mode { return s.mode }

// Create stores a new resource if the tenant's plan admits it. A denial
// is returned as *entitlement.DeniedError.
func (s *Service) Create(ctx context.Context, actor auth.Principal, tenantID string, in NewResource) (*Resource, error) {
	if !actor.CanAccessTenant(tenantID) {
		return nil, auth.ErrForbidden
	}
	r, err := s.build(tenantID, in)
	if err != nil {
		return nil, err
	}
	category := r.Kind.Category()

	ctx, span := traces.StartSpan(ctx, "resources.create",
		traces.TenantID(tenantID), traces.ResourceKind(string(r.Kind)))
	defer span.End()

	switch s.mode {
	case ModeAtomic:
		var admit AdmitFunc
		if admit, err = s.admit(ctx, tenantID, category); err != nil {
			return nil, err
		}
		err = s.store.InsertIfAllowed(ctx, r, admit)
	default:
		if v := s.gate.CheckLimit(ctx, tenantID, category); !v.Allowed {
			return nil, v.Err()
		}
		err = s.store.Insert(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	metrics.ResourcesCreatedTotal.WithLabelValues(string(r.Kind), string(s.mode)).Inc()

	s.logger.Info("resource created",
		"tenant", tenantID, "kind", string(r.Kind), "id", r.ID, "actor", actor.Subject, "mode", string(s.mode))
	return r, nil
}

// admit resolves the cap before the store takes its lock. The store's
// locked section then only counts and compares on its own connection, so
// waiters for the lock never hold up the holder's reads.
func (s *Service) admit(ctx context.Context, tenantID string, category plans.Category) (AdmitFunc, error) {
	a := s.gate.Resolve(ctx, tenantID, category)
	if a.Denied() {
		return nil, a.Decide(ctx, 0).Err()
	}
	return func(ctx context.Context, current int64) error {
		return a.Decide(ctx, current).Err()
	}, nil
}

func (s *Service) build(tenantID string, in NewResource) (*Resource, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	name := validation.SanitizeString(strings.TrimSpace(in.Name), 200)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidResource)
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be Active or Inactive", ErrInvalidResource)
	}
	if in.SizeMB < 0 {
		return nil, fmt.Errorf("%w: size must not be negative", ErrInvalidResource)
	}
	if in.Kind != KindDocument && in.SizeMB != 0 {
		return nil, fmt.Errorf("%w: only documents have a size", ErrInvalidResource)
	}
	return &Resource{
		ID:        idgen.WithPrefix(kinds[in.Kind].idPrefix),
		TenantID:  tenantID,
		Kind:      in.Kind,
		Name:      name,
		Status:    status,
		SizeMB:    in.SizeMB,
		CreatedAt: s.now().UTC(),
	}, nil
}

// Get returns one resource.
func (s *Service) Get(ctx context.Context, actor auth.Principal, tenantID string, kind Kind, id string) (*Resource, error) {
	if !actor.CanAccessTenant(tenantID) {
		return nil, auth.ErrForbidden
	}
	return s.store.Get(ctx, tenantID, kind, id)
}

// List returns a tenant's resources of one kind, oldest first.
func (s *Service) List(ctx context.Context, actor auth.Principal, tenantID string, kind Kind) ([]*Resource, error) {
	if !actor.CanAccessTenant(tenantID) {
		return nil, auth.ErrForbidden
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return s.store.List(ctx, tenantID, kind)
}

// Delete removes a resource. Requires tenant admin.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, tenantID string, kind Kind, id string) error {
	if !actor.CanManageTenant(tenantID) {
		return auth.ErrForbidden
	}
	if err := s.store.Delete(ctx, tenantID, kind, id); err != nil {
		return err
	}
	s.logger.Info("resource deleted", "tenant", tenantID, "kind", string(kind), "id", id, "actor", actor.Subject)
	return nil
}

// SetStaffStatus activates or deactivates a staff member. Activation takes
// a user seat, so it passes through the gate like a creation.
func (s *Service) SetStaffStatus(ctx context.Context, actor auth.Principal, tenantID, id string, status Status) (*Resource, error) {
	if !actor.CanManageTenant(tenantID) {
		return nil, auth.ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be Active or Inactive", ErrInvalidResource)
	}
	cur, err := s.store.Get(ctx, tenantID, KindStaff, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == status {
		return cur, nil
	}

	var admit AdmitFunc
	if status == StatusActive {
		switch s.mode {
		case ModeAtomic:
			admit, err = s.admit(ctx, tenantID, plans.CategoryUsers)
			if err != nil {
				return nil, err
			}
		default:
			if v := s.gate.CheckLimit(ctx, tenantID, plans.CategoryUsers); !v.Allowed {
				return nil, v.Err()
			}
		}
	}
	r, err := s.store.SetStatus(ctx, tenantID, KindStaff, id, status, admit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("staff status changed", "tenant", tenantID, "id", id, "status", string(status), "actor", actor.Subject)
	return r, nil
}

// DeleteTenant removes every resource a tenant owns.
func (s *Service) DeleteTenant(ctx context.Context, actor auth.Principal, tenantID string) error {
	if !actor.IsSuperAdmin() {
		return auth.ErrForbidden
	}
	return s.store.DeleteTenant(ctx, tenantID)
}

// Count implements usage.Source over the service's store.
func (s *Service) Count(ctx context.Context, tenantID string, category plans.Category) (int64, error) {
	return s.store.Count(ctx, tenantID, category)
}
