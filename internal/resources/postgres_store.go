package resources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbd888/fieldwork/internal/plans"
)

// PostgresStore persists resources in one table per kind.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed resource store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func table(kind Kind) (string, error) {
	info, ok := kinds[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return info.table, nil
}

// countQuery returns the usage query for category: Active staff, summed
// document sizes, or plain row counts.
func countQuery(category plans.Category) (string, error) {
	kind, ok := KindFor(category)
	if !ok {
		return "", fmt.Errorf("%w: no resources for category %q", ErrInvalidKind, category)
	}
	tbl := kinds[kind].table
	switch kind {
	case KindStaff:
		return `SELECT COUNT(*) FROM ` + tbl + ` WHERE tenant_id = $1 AND status = 'Active'`, nil
	case KindDocument:
		return `SELECT COALESCE(SUM(size_mb), 0) FROM ` + tbl + ` WHERE tenant_id = $1`, nil
	default:
		return `SELECT COUNT(*) FROM ` + tbl + ` WHERE tenant_id = $1`, nil
	}
}

func (p *PostgresStore) Insert(ctx context.Context, r *Resource) error {
	return insert(ctx, p.db, r)
}

func insert(ctx context.Context, db execer, r *Resource) error {
	tbl, err := table(r.Kind)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+tbl+` (id, tenant_id, name, status, size_mb, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.TenantID, r.Name, string(r.Status), r.SizeMB, r.CreatedAt,
	)
	return err
}

func count(ctx context.Context, db execer, tenantID string, category plans.Category) (int64, error) {
	q, err := countQuery(category)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// admitTx runs fn in a transaction holding a transaction-scoped advisory
// lock on (tenant, category). Concurrent admissions for the same pair
// serialize; the lock is released at commit or rollback.
func (p *PostgresStore) admitTx(ctx context.Context, tenantID string, category plans.Category, admit AdmitFunc, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(tenantID, category)); err != nil {
		return fmt.Errorf("acquire admission lock: %w", err)
	}
	current, err := count(ctx, tx, tenantID, category)
	if err != nil {
		return err
	}
	if err := admit(ctx, current); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) InsertIfAllowed(ctx context.Context, r *Resource, admit AdmitFunc) error {
	return p.admitTx(ctx, r.TenantID, r.Kind.Category(), admit, func(tx *sql.Tx) error {
		return insert(ctx, tx, r)
	})
}

func (p *PostgresStore) Get(ctx context.Context, tenantID string, kind Kind, id string) (*Resource, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}
	r := &Resource{Kind: kind}
	var status string
	err = p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, status, size_mb, created_at
		FROM `+tbl+` WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&r.ID, &r.TenantID, &r.Name, &status, &r.SizeMB, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return r, nil
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, kind Kind) ([]*Resource, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, status, size_mb, created_at
		FROM `+tbl+` WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Resource{}
	for rows.Next() {
		r := &Resource{Kind: kind}
		var status string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &status, &r.SizeMB, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID string, kind Kind, id string) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM `+tbl+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, tenantID string, kind Kind, id string, status Status, admit AdmitFunc) (*Resource, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}
	update := func(db execer) error {
		result, err := db.ExecContext(ctx, `UPDATE `+tbl+` SET status = $1 WHERE tenant_id = $2 AND id = $3`,
			string(status), tenantID, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrResourceNotFound
		}
		return nil
	}

	if admit == nil {
		err = update(p.db)
	} else {
		err = p.admitTx(ctx, tenantID, kind.Category(), admit, func(tx *sql.Tx) error { return update(tx) })
	}
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, tenantID, kind, id)
}

func (p *PostgresStore) DeleteTenant(ctx context.Context, tenantID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range Kinds {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+kinds[k].table+` WHERE tenant_id = $1`, tenantID); err != nil {
			return fmt.Errorf("delete %s: %w", kinds[k].table, err)
		}
	}
	return tx.Commit()
}

// Count implements usage.Source.
func (p *PostgresStore) Count(ctx context.Context, tenantID string, category plans.Category) (int64, error) {
	return count(ctx, p.db, tenantID, category)
}

// Migrate creates the resource tables (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, k := range Kinds {
		tbl := kinds[k].table
		_, err := p.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+tbl+` (
				id          TEXT PRIMARY KEY,
				tenant_id   TEXT NOT NULL,
				name        TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'Active',
				size_mb     BIGINT NOT NULL DEFAULT 0 CHECK (size_mb >= 0),
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_`+tbl+`_tenant ON `+tbl+`(tenant_id);
		`)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", tbl, err)
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
