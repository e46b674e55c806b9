package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mbd888/fieldwork/internal/plans"
)

// PostgresStore persists subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s *Subscription) error {
	capsJSON, err := json.Marshal(s.Caps)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (tenant_id, plan_name, status, start_date, caps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.TenantID, s.PlanName, string(s.Status), s.StartDate, capsJSON, s.CreatedAt, s.UpdatedAt,
	)
	return mapPQError(err)
}

func (p *PostgresStore) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	return scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT tenant_id, plan_name, status, start_date, caps, created_at, updated_at
		FROM subscriptions WHERE tenant_id = $1`, tenantID))
}

func (p *PostgresStore) Update(ctx context.Context, s *Subscription) error {
	capsJSON, err := json.Marshal(s.Caps)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET plan_name = $1, status = $2, caps = $3, updated_at = $4
		WHERE tenant_id = $5`,
		s.PlanName, string(s.Status), capsJSON, s.UpdatedAt, s.TenantID,
	)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tenant_id, plan_name, status, start_date, caps, created_at, updated_at
		FROM subscriptions WHERE status = $1 ORDER BY tenant_id`, string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountByPlan(ctx context.Context, planName string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE plan_name = $1`, planName).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*Subscription, error) {
	s := &Subscription{}
	var (
		status   string
		capsJSON []byte
	)
	err := row.Scan(&s.TenantID, &s.PlanName, &status, &s.StartDate, &capsJSON, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)
	caps := map[plans.Category]int64{}
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &caps); err != nil {
			return nil, fmt.Errorf("decode caps snapshot for %s: %w", s.TenantID, err)
		}
	}
	s.Caps = plans.CloneCaps(caps)
	return s, nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return ErrSubscriptionExists
	case "23503":
		if strings.Contains(pqErr.Constraint, "plan") {
			return plans.ErrPlanNotFound
		}
	}
	return err
}

// Migrate creates the subscriptions table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			tenant_id   TEXT PRIMARY KEY,
			plan_name   TEXT NOT NULL REFERENCES plans(name) ON UPDATE RESTRICT ON DELETE RESTRICT,
			status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'suspended')),
			start_date  DATE NOT NULL DEFAULT CURRENT_DATE,
			caps        JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_plan ON subscriptions(plan_name);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status);
	`)
	return err
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ plans.Referrers = (*PostgresStore)(nil)
)
