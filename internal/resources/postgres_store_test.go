package resources

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
	"github.com/mbd888/fieldwork/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVehicle() *Resource {
	return &Resource{
		ID:        "veh_1",
		TenantID:  "ten_1",
		Kind:      KindVehicle,
		Name:      "Van",
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestPostgresStore_CountQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM staff WHERE tenant_id = \$1 AND status = 'Active'`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := store.Count(ctx, "ten_1", plans.CategoryUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size_mb\), 0\) FROM documents WHERE tenant_id = \$1`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(640))
	n, err = store.Count(ctx, "ten_1", plans.CategoryStorageMB)
	require.NoError(t, err)
	assert.Equal(t, int64(640), n)

	_, err = store.Count(ctx, "ten_1", "max_boats")
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertIfAllowed_Admits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("ten_1|max_vehicles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicles WHERE tenant_id = \$1`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO vehicles`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var seen int64 = -1
	err = store.InsertIfAllowed(context.Background(), newVehicle(), func(_ context.Context, current int64) error {
		seen = current
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertIfAllowed_Refuses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("ten_1|max_vehicles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicles`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	refused := errors.New("limit reached")
	err = store.InsertIfAllowed(context.Background(), newVehicle(), func(context.Context, int64) error {
		return refused
	})
	assert.ErrorIs(t, err, refused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectExec(`DELETE FROM clients WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("ten_1", "cli_x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Delete(context.Background(), "ten_1", KindClient, "cli_x")
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	for _, tbl := range []string{"staff", "vehicles", "clients", "properties", "documents"} {
		mock.ExpectExec(`DELETE FROM ` + tbl + ` WHERE tenant_id = \$1`).
			WithArgs("ten_1").
			WillReturnResult(sqlmock.NewResult(0, 2))
	}
	mock.ExpectCommit()

	require.NoError(t, store.DeleteTenant(context.Background(), "ten_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// sqlSubscriptions and sqlPlans read through the same pool as the store.
type sqlSubscriptions struct{ db *sql.DB }

func (s sqlSubscriptions) GetActive(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan_name FROM subscriptions WHERE tenant_id = $1`, tenantID).Scan(&plan)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{TenantID: tenantID, PlanName: plan, Status: subscription.StatusActive}, nil
}

type sqlPlans struct{ db *sql.DB }

func (p sqlPlans) GetByName(ctx context.Context, name string) (*plans.Plan, error) {
	var vehicles int64
	err := p.db.QueryRowContext(ctx, `SELECT max_vehicles FROM plans WHERE name = $1`, name).Scan(&vehicles)
	if err != nil {
		return nil, err
	}
	return &plans.Plan{Name: name, Caps: map[plans.Category]int64{plans.CategoryVehicles: vehicles}}, nil
}

func expectResolve(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT plan_name FROM subscriptions WHERE tenant_id = \$1`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"plan_name"}).AddRow("Starter"))
	mock.ExpectQuery(`SELECT max_vehicles FROM plans WHERE name = \$1`).
		WithArgs("Starter").
		WillReturnRows(sqlmock.NewRows([]string{"max_vehicles"}).AddRow(1))
}

func TestService_AtomicCreateOnSingleConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	store := NewPostgresStore(db)
	gate := entitlement.NewGate(sqlSubscriptions{db}, sqlPlans{db}, usage.NewCounter(store))
	svc := NewService(store, gate, WithMode(ModeAtomic))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The cap is resolved before the transaction takes the only connection.
	expectResolve(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("ten_1|max_vehicles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicles`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO vehicles`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err = svc.Create(ctx, auth.System, "ten_1", NewResource{Kind: KindVehicle, Name: "Van"})
	require.NoError(t, err)

	expectResolve(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("ten_1|max_vehicles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicles`).
		WithArgs("ten_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err = svc.Create(ctx, auth.System, "ten_1", NewResource{Kind: KindVehicle, Name: "Truck"})
	var denied *entitlement.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, entitlement.ReasonLimitReached, denied.Verdict.Reason)
	assert.NoError(t, ctx.Err())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_AtomicDeniedBeforeTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	gate := entitlement.NewGate(sqlSubscriptions{db}, sqlPlans{db}, usage.NewCounter(store))
	svc := NewService(store, gate, WithMode(ModeAtomic))

	mock.ExpectQuery(`SELECT plan_name FROM subscriptions`).
		WithArgs("ten_1").
		WillReturnError(errors.New("connection reset by peer"))

	_, err = svc.Create(context.Background(), auth.System, "ten_1", NewResource{Kind: KindVehicle, Name: "Van"})
	var denied *entitlement.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, entitlement.ReasonDataAccessFailure, denied.Verdict.Reason)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction is opened")
}

func TestService_AtomicRacersOutnumberPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)

	store := NewPostgresStore(db)
	gate := entitlement.NewGate(sqlSubscriptions{db}, sqlPlans{db}, usage.NewCounter(store))
	svc := NewService(store, gate, WithMode(ModeAtomic))

	// With a single connection each transaction runs alone, so the first
	// count sees 0 and every later one sees the committed row.
	const racers = 4
	for i := 0; i < racers; i++ {
		expectResolve(mock)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs("ten_1|max_vehicles").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicles`).
			WithArgs("ten_1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(min(i, 1)))
	}
	mock.ExpectExec(`INSERT INTO vehicles`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	for i := 1; i < racers; i++ {
		mock.ExpectRollback()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, auth.System, "ten_1", NewResource{Kind: KindVehicle, Name: "Van"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		var denied *entitlement.DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, entitlement.ReasonLimitReached, denied.Verdict.Reason)
	}
	assert.Equal(t, 1, won)
	assert.NoError(t, ctx.Err())
	assert.NoError(t, mock.ExpectationsWereMet())
}
