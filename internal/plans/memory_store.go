package plans

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory plan store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*Plan // by ID
	names map[string]string // name -> ID
}

// NewMemoryStore creates a new in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]*Plan),
		names: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[p.Name]; exists {
		return ErrDuplicatePlanName
	}
	m.plans[p.ID] = p.Clone()
	m.names[p.Name] = p.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) GetByName(_ context.Context, name string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.names[name]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return m.plans[id].Clone(), nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p.Clone())
	}
	sortByPrice(out)
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.plans[p.ID]
	if !ok {
		return ErrPlanNotFound
	}
	if old.Name != p.Name {
		if _, taken := m.names[p.Name]; taken {
			return ErrDuplicatePlanName
		}
		delete(m.names, old.Name)
		m.names[p.Name] = p.ID
	}
	m.plans[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	delete(m.names, p.Name)
	delete(m.plans, id)
	return nil
}

// sortByPrice orders by currency, then amount, then name. Amounts in
// different currencies are not compared.
func sortByPrice(list []*Plan) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Price.Currency != list[j].Price.Currency {
			return list[i].Price.Currency < list[j].Price.Currency
		}
		if list[i].Price.Amount != list[j].Price.Amount {
			return list[i].Price.Amount < list[j].Price.Amount
		}
		return list[i].Name < list[j].Name
	})
}

var _ Store = (*MemoryStore)(nil)
