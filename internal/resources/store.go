package resources

import (
	"context"

	"github.com/mbd888/fieldwork/internal/plans"
)

// Store persists tenant resources and counts them for the usage counter.
type Store interface {
	Insert(ctx context.Context, r *Resource) error
	// InsertIfAllowed counts usage, consults admit and inserts, all while
	// holding the tenant's admission lock for r's category.
	InsertIfAllowed(ctx context.Context, r *Resource, admit AdmitFunc) error
	Get(ctx context.Context, tenantID string, kind Kind, id string) (*Resource, error)
	List(ctx context.Context, tenantID string, kind Kind) ([]*Resource, error)
	Delete(ctx context.Context, tenantID string, kind Kind, id string) error
	// SetStatus changes a resource's status. A non-nil admit is consulted
	// under the admission lock before the change.
	SetStatus(ctx context.Context, tenantID string, kind Kind, id string, status Status, admit AdmitFunc) (*Resource, error)
	DeleteTenant(ctx context.Context, tenantID string) error
	Count(ctx context.Context, tenantID string, category plans.Category) (int64, error)
}
