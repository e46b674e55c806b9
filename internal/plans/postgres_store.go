package plans

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists plans in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed plan store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const planColumns = `id, name, price_amount, price_currency,
	max_users, max_vehicles, max_clients, max_properties, max_storage_mb,
	modules, deprecated_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, pl *Plan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		pl.ID, pl.Name, pl.Price.Amount, pl.Price.Currency,
		pl.Caps[CategoryUsers], pl.Caps[CategoryVehicles], pl.Caps[CategoryClients],
		pl.Caps[CategoryProperties], pl.Caps[CategoryStorageMB],
		pq.Array(pl.Modules), pl.DeprecatedAt, pl.CreatedAt, pl.UpdatedAt,
	)
	return mapPQError(err)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx, `
		SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

func (p *PostgresStore) GetByName(ctx context.Context, name string) (*Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx, `
		SELECT `+planColumns+` FROM plans WHERE name = $1`, name))
}

func (p *PostgresStore) List(ctx context.Context) ([]*Plan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM plans ORDER BY price_currency ASC, price_amount ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Plan{}
	for rows.Next() {
		pl, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, pl *Plan) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE plans SET name = $1, price_amount = $2, price_currency = $3,
			max_users = $4, max_vehicles = $5, max_clients = $6,
			max_properties = $7, max_storage_mb = $8,
			modules = $9, deprecated_at = $10, updated_at = $11
		WHERE id = $12`,
		pl.Name, pl.Price.Amount, pl.Price.Currency,
		pl.Caps[CategoryUsers], pl.Caps[CategoryVehicles], pl.Caps[CategoryClients],
		pl.Caps[CategoryProperties], pl.Caps[CategoryStorageMB],
		pq.Array(pl.Modules), pl.DeprecatedAt, pl.UpdatedAt, pl.ID,
	)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*Plan, error) {
	var (
		pl                                       Plan
		users, vehicles, clients, props, storage int64
		modules                                  pq.StringArray
		deprecated                               sql.NullTime
	)
	err := s.Scan(&pl.ID, &pl.Name, &pl.Price.Amount, &pl.Price.Currency,
		&users, &vehicles, &clients, &props, &storage,
		&modules, &deprecated, &pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	pl.Caps = map[Category]int64{
		CategoryUsers:      users,
		CategoryVehicles:   vehicles,
		CategoryClients:    clients,
		CategoryProperties: props,
		CategoryStorageMB:  storage,
	}
	pl.Modules = []string(modules)
	if pl.Modules == nil {
		pl.Modules = []string{}
	}
	if deprecated.Valid {
		t := deprecated.Time.UTC()
		pl.DeprecatedAt = &t
	}
	return &pl, nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrDuplicatePlanName
		case "23503":
			return ErrPlanInUse
		}
	}
	return err
}

// Migrate creates the plans table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS plans (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			price_amount    BIGINT NOT NULL DEFAULT 0,
			price_currency  TEXT NOT NULL DEFAULT 'USD',
			max_users       BIGINT NOT NULL DEFAULT 0 CHECK (max_users >= 0),
			max_vehicles    BIGINT NOT NULL DEFAULT 0 CHECK (max_vehicles >= 0),
			max_clients     BIGINT NOT NULL DEFAULT 0 CHECK (max_clients >= 0),
			max_properties  BIGINT NOT NULL DEFAULT 0 CHECK (max_properties >= 0),
			max_storage_mb  BIGINT NOT NULL DEFAULT 0 CHECK (max_storage_mb >= 0),
			modules         TEXT[] NOT NULL DEFAULT '{}',
			deprecated_at   TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_plans_price ON plans(price_amount, name);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
