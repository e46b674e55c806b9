package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refuseAll struct{}

func (refuseAll) CanChangePlan(context.Context, string, *plans.Plan) error {
	return ErrPlanChangeRefused
}

func setupService(t *testing.T) (*Service, *MemoryStore, *plans.Catalog) {
	t.Helper()
	ctx := context.Background()

	store := NewMemoryStore()
	catalog := plans.NewCatalog(plans.NewMemoryStore(), store)
	_, err := catalog.Seed(ctx, plans.DefaultPlans()...)
	require.NoError(t, err)

	now := time.Date(2026, 5, 17, 22, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	svc := NewService(store, catalog, WithClock(func() time.Time { return now }))
	return svc, store, catalog
}

func TestService_Create(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, "Starter", sub.PlanName)
	assert.Equal(t, time.Date(2026, 5, 18, 0, 0, 0, 0, time.UTC), sub.StartDate, "start date is the UTC date")
	assert.Equal(t, int64(1), sub.Caps[plans.CategoryVehicles])

	_, err = svc.Create(ctx, auth.System, "ten_1", "Professional")
	assert.ErrorIs(t, err, ErrSubscriptionExists)
}

func TestService_CreateUnknownPlan(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Create(context.Background(), auth.System, "ten_1", "Platinum")
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
}

func TestService_CreateForbidden(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Create(context.Background(), auth.TenantAdmin("u", "ten_1"), "ten_1", "Starter")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestService_CreateOnDeprecatedPlan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	catalog := plans.NewCatalog(plans.NewMemoryStore(), store, plans.WithDeletePolicy(plans.DeleteDeprecate))
	_, err := catalog.Seed(ctx, plans.DefaultPlans()...)
	require.NoError(t, err)
	svc := NewService(store, catalog)

	_, err = svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)

	starter, err := catalog.GetByName(ctx, "Starter")
	require.NoError(t, err)
	deprecated, err := catalog.Delete(ctx, auth.System, starter.ID)
	require.NoError(t, err)
	require.True(t, deprecated)

	_, err = svc.Create(ctx, auth.System, "ten_2", "Starter")
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)

	// The existing subscription keeps working.
	sub, err := svc.GetActive(ctx, "ten_1")
	require.NoError(t, err)
	assert.NotNil(t, sub)
}

func TestService_SetStatus(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)

	sub, err := svc.SetStatus(ctx, auth.System, "ten_1", StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, sub.Status)

	// Idempotent.
	sub, err = svc.SetStatus(ctx, auth.System, "ten_1", StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, sub.Status)

	_, err = svc.SetStatus(ctx, auth.System, "ten_1", "cancelled")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.SetStatus(ctx, auth.System, "ten_404", StatusActive)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestService_GetActive(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	sub, err := svc.GetActive(ctx, "ten_1")
	require.NoError(t, err)
	assert.Nil(t, sub, "no subscription")

	_, err = svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)

	sub, err = svc.GetActive(ctx, "ten_1")
	require.NoError(t, err)
	require.NotNil(t, sub)

	_, err = svc.SetStatus(ctx, auth.System, "ten_1", StatusSuspended)
	require.NoError(t, err)
	sub, err = svc.GetActive(ctx, "ten_1")
	require.NoError(t, err)
	assert.Nil(t, sub, "suspended is treated as none")

	store.FailNextGet(errors.New("connection reset"))
	_, err = svc.GetActive(ctx, "ten_1")
	assert.Error(t, err)
}

func TestService_ChangePlan(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)

	sub, err := svc.ChangePlan(ctx, auth.System, "ten_1", "Professional")
	require.NoError(t, err)
	assert.Equal(t, "Professional", sub.PlanName)
	assert.Equal(t, int64(10), sub.Caps[plans.CategoryVehicles])

	svc.SetPlanChangeGuard(refuseAll{})
	_, err = svc.ChangePlan(ctx, auth.System, "ten_1", "Starter")
	assert.ErrorIs(t, err, ErrPlanChangeRefused)

	got, err := svc.Get(ctx, "ten_1")
	require.NoError(t, err)
	assert.Equal(t, "Professional", got.PlanName)
}

func TestService_DeleteAndCount(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)
	_, err = svc.Create(ctx, auth.System, "ten_2", "Starter")
	require.NoError(t, err)

	n, err := svc.CountByPlan(ctx, "Starter")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, svc.Delete(ctx, auth.System, "ten_1"))
	require.NoError(t, svc.Delete(ctx, auth.System, "ten_1"), "deleting twice is fine")

	n, err = svc.CountByPlan(ctx, "Starter")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ten_2", active[0].TenantID)
}
