package resources

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/syncutil"
)

// MemoryStore is an in-memory resource store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string]*Resource // by ID

	admission *syncutil.KeyedMutex

	countErr error // returned by Count when set (tests)
}

// NewMemoryStore creates a new in-memory resource store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string]*Resource),
		admission: syncutil.NewKeyedMutex(0),
	}
}

// FailCounts makes Count return err until called again with nil.
func (m *MemoryStore) FailCounts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

func (m *MemoryStore) Insert(_ context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.resources[r.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertIfAllowed(ctx context.Context, r *Resource, admit AdmitFunc) error {
	unlock, err := m.admission.LockContext(ctx, lockKey(r.TenantID, r.Kind.Category()))
	if err != nil {
		return err
	}
	defer unlock()

	current, err := m.Count(ctx, r.TenantID, r.Kind.Category())
	if err != nil {
		return err
	}
	if err := admit(ctx, current); err != nil {
		return err
	}
	return m.Insert(ctx, r)
}

func (m *MemoryStore) Get(_ context.Context, tenantID string, kind Kind, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[id]
	if !ok || r.TenantID != tenantID || r.Kind != kind {
		return nil, ErrResourceNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, tenantID string, kind Kind) ([]*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Resource{}
	for _, r := range m.resources {
		if r.TenantID == tenantID && r.Kind == kind {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID string, kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[id]
	if !ok || r.TenantID != tenantID || r.Kind != kind {
		return ErrResourceNotFound
	}
	delete(m.resources, id)
	return nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, tenantID string, kind Kind, id string, status Status, admit AdmitFunc) (*Resource, error) {
	if admit != nil {
		unlock, err := m.admission.LockContext(ctx, lockKey(tenantID, kind.Category()))
		if err != nil {
			return nil, err
		}
		defer unlock()

		current, err := m.Count(ctx, tenantID, kind.Category())
		if err != nil {
			return nil, err
		}
		if err := admit(ctx, current); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[id]
	if !ok || r.TenantID != tenantID || r.Kind != kind {
		return nil, ErrResourceNotFound
	}
	r.Status = status
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) DeleteTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.resources {
		if r.TenantID == tenantID {
			delete(m.resources, id)
		}
	}
	return nil
}

// Count implements usage.Source.
func (m *MemoryStore) Count(_ context.Context, tenantID string, category plans.Category) (int64, error) {
	kind, ok := KindFor(category)
	if !ok {
		return 0, fmt.Errorf("%w: no resources for category %q", ErrInvalidKind, category)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.countErr != nil {
		return 0, m.countErr
	}
	var n int64
	for _, r := range m.resources {
		if r.TenantID == tenantID && r.Kind == kind {
			n += r.weight()
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
