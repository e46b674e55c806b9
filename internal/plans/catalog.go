package plans

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/idgen"
)

// DeletePolicy controls what Delete does with a plan that subscriptions
// still reference.
type DeletePolicy string

const (
	DeleteRestrict  DeletePolicy = "restrict"  // refuse with ErrPlanInUse
	DeleteDeprecate DeletePolicy = "deprecate" // soft delete, keep resolvable
)

// Valid reports whether p is a known policy.
func (p DeletePolicy) Valid() bool {
	return p == DeleteRestrict || p == DeleteDeprecate
}

// NewPlan is the input to Catalog.Create.
type NewPlan struct {
	Name    string             `json:"name"`
	Price   Money              `json:"price"`
	Caps    map[Category]int64 `json:"caps"`
	Modules []string           `json:"modules"`
}

// PlanUpdate holds the fields Catalog.Update may change. Nil fields are
// left untouched; Caps entries are merged over the existing caps.
type PlanUpdate struct {
	Name    *string            `json:"name,omitempty"`
	Price   *Money             `json:"price,omitempty"`
	Caps    map[Category]int64 `json:"caps,omitempty"`
	Modules *[]string          `json:"modules,omitempty"`
}

// Catalog is the plan catalog service.
type Catalog struct {
	store  Store
	refs   Referrers
	policy DeletePolicy
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithDeletePolicy sets the policy for deleting referenced plans.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(c *Catalog) {
		if p.Valid() {
			c.policy = p
		}
	}
}

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// NewCatalog creates a catalog over store. refs reports subscription
// references; nil means plans are never referenced.
func NewCatalog(store Store, refs Referrers, opts ...Option) *Catalog {
	c := &Catalog{
		store:  store,
		refs:   refs,
		policy: DeleteRestrict,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the configured delete policy.
func (c *Catalog) Policy() DeletePolicy { return c.policy }

// List returns the offered plans grouped by currency, cheapest first
// within each. Deprecated plans are hidden.
func (c *Catalog) List(ctx context.Context) ([]*Plan, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	out := make([]*Plan, 0, len(all))
	for _, p := range all {
		if !p.Deprecated() {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListAll returns every plan including deprecated ones.
func (c *Catalog) ListAll(ctx context.Context) ([]*Plan, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return all, nil
}

// Get returns a plan by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Plan, error) {
	return c.store.Get(ctx, id)
}

// GetByName resolves a plan by name. Deprecated plans still resolve.
func (c *Catalog) GetByName(ctx context.Context, name string) (*Plan, error) {
	return c.store.GetByName(ctx, name)
}

// Create adds a plan to the catalog.
func (c *Catalog) Create(ctx context.Context, actor auth.Principal, in NewPlan) (*Plan, error) {
	if !actor.CanManageCatalog() {
		return nil, auth.ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if in.Price.Currency == "" {
		in.Price.Currency = "USD"
	}
	in.Price.Currency = strings.ToUpper(in.Price.Currency)
	if err := in.Price.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCaps(in.Caps); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	p := &Plan{
		ID:        idgen.WithPrefix("plan_"),
		Name:      name,
		Price:     in.Price,
		Caps:      CloneCaps(in.Caps),
		Modules:   NormalizeModules(in.Modules),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Create(ctx, p); err != nil {
		return nil, err
	}
	c.logger.Info("plan created", "plan", p.Name, "id", p.ID, "actor", actor.Subject)
	return p, nil
}

// Update edits a plan in place. New caps apply to the next entitlement
// check.
func (c *Catalog) Update(ctx context.Context, actor auth.Principal, id string, in PlanUpdate) (*Plan, error) {
	if !actor.CanManageCatalog() {
		return nil, auth.ErrForbidden
	}
	p, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidPlan)
		}
		if name != p.Name {
			n, err := c.references(ctx, p.Name)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				return nil, fmt.Errorf("%w: cannot rename a plan with %d subscriptions", ErrPlanInUse, n)
			}
		}
		p.Name = name
	}
	if in.Price != nil {
		price := *in.Price
		if price.Currency == "" {
			price.Currency = p.Price.Currency
		}
		price.Currency = strings.ToUpper(price.Currency)
		if err := price.Validate(); err != nil {
			return nil, err
		}
		p.Price = price
	}
	if in.Caps != nil {
		if err := ValidateCaps(in.Caps); err != nil {
			return nil, err
		}
		for cat, v := range in.Caps {
			p.Caps[cat] = v
		}
	}
	if in.Modules != nil {
		p.Modules = NormalizeModules(*in.Modules)
	}
	p.UpdatedAt = c.now().UTC()

	if err := c.store.Update(ctx, p); err != nil {
		return nil, err
	}
	c.logger.Info("plan updated", "plan", p.Name, "id", p.ID, "actor", actor.Subject)
	return p, nil
}

// Delete removes a plan. With DeleteRestrict a referenced plan is refused
// with ErrPlanInUse. With DeleteDeprecate it is soft-deleted instead and
// deprecated reports true.
func (c *Catalog) Delete(ctx context.Context, actor auth.Principal, id string) (deprecated bool, err error) {
	if !actor.CanManageCatalog() {
		return false, auth.ErrForbidden
	}
	p, err := c.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := c.references(ctx, p.Name)
	if err != nil {
		return false, err
	}

	if n > 0 {
		if c.policy != DeleteDeprecate {
			return false, ErrPlanInUse
		}
		if p.Deprecated() {
			return true, nil
		}
		now := c.now().UTC()
		p.DeprecatedAt = &now
		p.UpdatedAt = now
		if err := c.store.Update(ctx, p); err != nil {
			return false, err
		}
		c.logger.Info("plan deprecated", "plan", p.Name, "subscriptions", n, "actor", actor.Subject)
		return true, nil
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return false, err
	}
	c.logger.Info("plan deleted", "plan", p.Name, "id", p.ID, "actor", actor.Subject)
	return false, nil
}

// Seed inserts defaults when the catalog is empty. It returns how many
// plans were created.
func (c *Catalog) Seed(ctx context.Context, defaults ...NewPlan) (int, error) {
	existing, err := c.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed plans: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, np := range defaults {
		if _, err := c.Create(ctx, auth.System, np); err != nil {
			return i, fmt.Errorf("seed plan %q: %w", np.Name, err)
		}
	}
	return len(defaults), nil
}

func (c *Catalog) references(ctx context.Context, name string) (int, error) {
	if c.refs == nil {
		return 0, nil
	}
	n, err := c.refs.CountByPlan(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count plan references: %w", err)
	}
	return n, nil
}
