// Package auth issues tenant-scoped API keys and turns them into the
// Principal that every workflow receives explicitly.
//
// Authentication model:
//   - Health and metrics endpoints: no auth
//   - Tenant endpoints: API key bound to the tenant (member or tenant_admin)
//   - Catalog and tenant administration: super_admin key or the ADMIN_SECRET header
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/fieldwork/internal/idgen"
)

// Errors
var (
	ErrNoAPIKey      = errors.New("auth: API key required")
	ErrInvalidAPIKey = errors.New("auth: invalid or revoked API key")
	ErrKeyNotFound   = errors.New("auth: API key not found")
	ErrForbidden     = errors.New("auth: forbidden")
	ErrInvalidRole   = errors.New("auth: invalid role")
)

const keyPrefix = "fw_"

// APIKey is the stored form of an issued key.
type APIKey struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"`
	Name      string     `json:"name"`
	TenantID  string     `json:"tenantId,omitempty"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Principal returns the authorization context the key grants.
func (k *APIKey) Principal() Principal {
	return Principal{Subject: k.ID, TenantID: k.TenantID, Role: k.Role}
}

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
	DeleteByTenant(ctx context.Context, tenantID string) error
}

// Manager handles key issuance and validation.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a new auth manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Store exposes the underlying key store.
func (m *Manager) Store() Store {
	return m.store
}

// GenerateKey issues a key with the given role for tenantID. The raw key is
// returned once and only its hash is stored.
func (m *Manager) GenerateKey(ctx context.Context, actor Principal, tenantID string, role Role, name string) (rawKey string, key *APIKey, err error) {
	if !role.Valid() {
		return "", nil, ErrInvalidRole
	}
	if role == RoleSuperAdmin {
		if !actor.IsSuperAdmin() {
			return "", nil, ErrForbidden
		}
		tenantID = ""
	} else if tenantID == "" || !actor.CanManageTenant(tenantID) {
		return "", nil, ErrForbidden
	}

	rawKey = keyPrefix + idgen.Hex(32)
	key = &APIKey{
		ID:        idgen.WithPrefix("ak_"),
		Hash:      hashKey(rawKey),
		Name:      strings.TrimSpace(name),
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: m.now().UTC(),
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return rawKey, key, nil
}

// ValidateKey resolves a raw key, accepting an optional "Bearer " prefix.
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	rawKey = strings.TrimSpace(strings.TrimPrefix(rawKey, "Bearer "))
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}
	if !strings.HasPrefix(rawKey, keyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	key, err := m.store.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	if key.Revoked {
		return nil, ErrInvalidAPIKey
	}

	now := m.now().UTC()
	key.LastUsed = &now
	_ = m.store.Update(ctx, key)

	return key, nil
}

// ListKeys returns the keys of a tenant, newest first.
func (m *Manager) ListKeys(ctx context.Context, actor Principal, tenantID string) ([]*APIKey, error) {
	if !actor.CanManageTenant(tenantID) {
		return nil, ErrForbidden
	}
	keys, err := m.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

// RevokeKey revokes one key of a tenant.
func (m *Manager) RevokeKey(ctx context.Context, actor Principal, tenantID, keyID string) error {
	if !actor.CanManageTenant(tenantID) {
		return ErrForbidden
	}
	keys, err := m.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			k.Revoked = true
			return m.store.Update(ctx, k)
		}
	}
	return ErrKeyNotFound
}

// DeleteTenantKeys removes every key of a tenant; used by tenant deletion.
func (m *Manager) DeleteTenantKeys(ctx context.Context, tenantID string) error {
	return m.store.DeleteByTenant(ctx, tenantID)
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // by ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*APIKey)}
}

func (s *MemoryStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Hash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			cp := *k
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; !ok {
		return ErrKeyNotFound
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.keys {
		if k.TenantID == tenantID {
			delete(s.keys, id)
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
