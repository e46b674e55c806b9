package subscription

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory subscription store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // by tenant ID

	// failNext, when set, is returned by the next Get (tests).
	failNext error
}

// NewMemoryStore creates a new in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

// FailNextGet makes the next Get return err.
func (m *MemoryStore) FailNextGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryStore) Create(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subs[s.TenantID]; exists {
		return ErrSubscriptionExists
	}
	m.subs[s.TenantID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tenantID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}
	s, ok := m.subs[tenantID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[s.TenantID]; !ok {
		return ErrSubscriptionNotFound
	}
	m.subs[s.TenantID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[tenantID]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(m.subs, tenantID)
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, s := range m.subs {
		if s.Active() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (m *MemoryStore) CountByPlan(_ context.Context, planName string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.subs {
		if s.PlanName == planName {
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
