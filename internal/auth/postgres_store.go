package auth

import (
	"context"
	"database/sql"
)

// PostgresStore persists API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, name, tenant_id, role, created_at, revoked)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
		key.ID, key.Hash, key.Name, key.TenantID, string(key.Role), key.CreatedAt, key.Revoked,
	)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, hash, name, tenant_id, role, created_at, last_used, revoked
		FROM api_keys WHERE hash = $1`, hash)
	return scanKey(row)
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, name, tenant_id, role, created_at, last_used, revoked
		FROM api_keys WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, key *APIKey) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET name = $1, last_used = $2, revoked = $3
		WHERE id = $4`,
		key.Name, key.LastUsed, key.Revoked, key.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM api_keys WHERE tenant_id = $1`, tenantID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*APIKey, error) {
	k := &APIKey{}
	var (
		tenantID sql.NullString
		role     string
		lastUsed sql.NullTime
	)
	err := row.Scan(&k.ID, &k.Hash, &k.Name, &tenantID, &role, &k.CreatedAt, &lastUsed, &k.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	k.TenantID = tenantID.String
	k.Role = Role(role)
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsed = &t
	}
	return k, nil
}

var _ Store = (*PostgresStore)(nil)
