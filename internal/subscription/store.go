package subscription

import "context"

// Store persists subscriptions, keyed by tenant.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, tenantID string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Delete(ctx context.Context, tenantID string) error
	ListActive(ctx context.Context) ([]*Subscription, error)
	CountByPlan(ctx context.Context, planName string) (int, error)
}
