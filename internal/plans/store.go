package plans

import "context"

// Store persists plans.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	GetByName(ctx context.Context, name string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error) // includes deprecated, ascending by price then name
	Update(ctx context.Context, p *Plan) error
	Delete(ctx context.Context, id string) error
}

// Referrers counts the subscriptions bound to a plan name.
type Referrers interface {
	CountByPlan(ctx context.Context, planName string) (int, error)
}
