package resources

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
	"github.com/mbd888/fieldwork/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	store   Store
	mem     *MemoryStore
	catalog *plans.Catalog
	subs    *subscription.Service
	gate    *entitlement.Gate
	svc     *Service
}

func newStack(t *testing.T, mode Mode, wrap func(*MemoryStore) Store) *stack {
	t.Helper()
	ctx := context.Background()

	s := &stack{mem: NewMemoryStore()}
	s.store = s.mem
	if wrap != nil {
		s.store = wrap(s.mem)
	}

	subStore := subscription.NewMemoryStore()
	s.catalog = plans.NewCatalog(plans.NewMemoryStore(), subStore)
	_, err := s.catalog.Seed(ctx, plans.DefaultPlans()...)
	require.NoError(t, err)
	s.subs = subscription.NewService(subStore, s.catalog)

	counter := usage.NewCounter(s.store)
	s.gate = entitlement.NewGate(s.subs, s.catalog, counter)
	s.svc = NewService(s.store, s.gate, WithMode(mode))

	_, err = s.subs.Create(ctx, auth.System, "ten_1", "Starter")
	require.NoError(t, err)
	return s
}

var admin = auth.TenantAdmin("owner@acme.test", "ten_1")

func vehicle(name string) NewResource {
	return NewResource{Kind: KindVehicle, Name: name}
}

// barrierStore holds every Insert until n inserts are pending, so all
// creators finish their entitlement check before any row lands.
type barrierStore struct {
	*MemoryStore
	wg *sync.WaitGroup
}

func (b *barrierStore) Insert(ctx context.Context, r *Resource) error {
	b.wg.Done()
	b.wg.Wait()
	return b.MemoryStore.Insert(ctx, r)
}

func TestCreate_StarterVehicleLimit(t *testing.T) {
	for _, mode := range []Mode{ModeSoft, ModeAtomic} {
		t.Run(string(mode), func(t *testing.T) {
			s := newStack(t, mode, nil)
			ctx := context.Background()

			r, err := s.svc.Create(ctx, admin, "ten_1", vehicle("Van 1"))
			require.NoError(t, err)
			assert.Contains(t, r.ID, "veh_")

			_, err = s.svc.Create(ctx, admin, "ten_1", vehicle("Van 2"))
			require.Error(t, err)
			assert.ErrorIs(t, err, entitlement.ErrDenied)
			assert.Equal(t, "limit reached: plan Starter allows 1 vehicles, you have 1", err.Error())

			n, err := s.mem.Count(ctx, "ten_1", plans.CategoryVehicles)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "denied creation must not write")
		})
	}
}

func TestCreate_SoftModeRaceAdmitsBoth(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	s := newStack(t, ModeSoft, func(m *MemoryStore) Store { return &barrierStore{MemoryStore: m, wg: &wg} })
	ctx := context.Background()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.svc.Create(ctx, admin, "ten_1", vehicle("Van"))
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-errs, "both creators pass the check before either inserts")
	}

	n, err := s.mem.Count(ctx, "ten_1", plans.CategoryVehicles)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "soft enforcement overshoots the cap of 1")
}

func TestCreate_AtomicModeSingleWinner(t *testing.T) {
	s := newStack(t, ModeAtomic, nil)
	ctx := context.Background()

	const racers = 8
	start := make(chan struct{})
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			<-start
			_, err := s.svc.Create(ctx, admin, "ten_1", vehicle("Van"))
			errs <- err
		}()
	}
	close(start)

	var won, denied int
	for i := 0; i < racers; i++ {
		err := <-errs
		switch {
		case err == nil:
			won++
		case errors.Is(err, entitlement.ErrDenied):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, racers-1, denied)

	n, err := s.mem.Count(ctx, "ten_1", plans.CategoryVehicles)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreate_NoSubscription(t *testing.T) {
	s := newStack(t, ModeSoft, nil)

	_, err := s.svc.Create(context.Background(), auth.SuperAdmin("root"), "ten_2", vehicle("Van"))
	v, ok := entitlement.AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, entitlement.ReasonNoActiveSubscription, v.Reason)
}

func TestCreate_Validation(t *testing.T) {
	s := newStack(t, ModeSoft, nil)
	ctx := context.Background()

	_, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: "boat", Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindClient, Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidResource)

	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindClient, Name: "Acme", SizeMB: 3})
	assert.ErrorIs(t, err, ErrInvalidResource)

	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Sam", Status: "Away"})
	assert.ErrorIs(t, err, ErrInvalidResource)
}

func TestCreate_WrongTenant(t *testing.T) {
	s := newStack(t, ModeSoft, nil)

	_, err := s.svc.Create(context.Background(), auth.Member("u", "ten_9"), "ten_1", vehicle("Van"))
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestStaff_OnlyActiveCount(t *testing.T) {
	s := newStack(t, ModeAtomic, nil) // Starter: max_users = 2
	ctx := context.Background()

	a, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Ana"})
	require.NoError(t, err)
	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Ben"})
	require.NoError(t, err)
	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Cal"})
	assert.ErrorIs(t, err, entitlement.ErrDenied)

	// Deactivating frees a seat.
	_, err = s.svc.SetStaffStatus(ctx, admin, "ten_1", a.ID, StatusInactive)
	require.NoError(t, err)
	c, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Cal"})
	require.NoError(t, err)

	// Reactivating needs a seat.
	_, err = s.svc.SetStaffStatus(ctx, admin, "ten_1", a.ID, StatusActive)
	assert.ErrorIs(t, err, entitlement.ErrDenied)

	require.NoError(t, s.svc.Delete(ctx, admin, "ten_1", KindStaff, c.ID))
	r, err := s.svc.SetStaffStatus(ctx, admin, "ten_1", a.ID, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, r.Status)
}

func TestStaff_InactiveCreatedStillChecked(t *testing.T) {
	s := newStack(t, ModeSoft, nil)
	ctx := context.Background()

	for _, name := range []string{"Ana", "Ben"} {
		_, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: name})
		require.NoError(t, err)
	}
	_, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindStaff, Name: "Cal", Status: StatusInactive})
	assert.ErrorIs(t, err, entitlement.ErrDenied)
}

func TestDocuments_StorageCap(t *testing.T) {
	s := newStack(t, ModeSoft, nil) // Starter: 500 MB
	ctx := context.Background()

	_, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindDocument, Name: "plans.pdf", SizeMB: 450})
	require.NoError(t, err)
	// Under the cap, so a single upload may overshoot it.
	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindDocument, Name: "survey.zip", SizeMB: 100})
	require.NoError(t, err)

	_, err = s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindDocument, Name: "one-more.pdf", SizeMB: 1})
	v, ok := entitlement.AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "limit reached: plan Starter allows 500 MB of storage, you have 550", v.Message)
}

func TestDelete_RequiresTenantAdmin(t *testing.T) {
	s := newStack(t, ModeSoft, nil)
	ctx := context.Background()

	r, err := s.svc.Create(ctx, admin, "ten_1", vehicle("Van"))
	require.NoError(t, err)

	err = s.svc.Delete(ctx, auth.Member("u", "ten_1"), "ten_1", KindVehicle, r.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	require.NoError(t, s.svc.Delete(ctx, admin, "ten_1", KindVehicle, r.ID))
	assert.ErrorIs(t, s.svc.Delete(ctx, admin, "ten_1", KindVehicle, r.ID), ErrResourceNotFound)

	// The slot is free again.
	_, err = s.svc.Create(ctx, admin, "ten_1", vehicle("Van 2"))
	assert.NoError(t, err)
}

func TestListAndDeleteTenant(t *testing.T) {
	s := newStack(t, ModeSoft, nil)
	ctx := context.Background()

	for _, name := range []string{"Acme", "Globex"} {
		_, err := s.svc.Create(ctx, admin, "ten_1", NewResource{Kind: KindClient, Name: name})
		require.NoError(t, err)
	}
	list, err := s.svc.List(ctx, admin, "ten_1", KindClient)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, s.svc.DeleteTenant(ctx, admin, "ten_1"), auth.ErrForbidden)
	require.NoError(t, s.svc.DeleteTenant(ctx, auth.System, "ten_1"))

	list, err = s.svc.List(ctx, admin, "ten_1", KindClient)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("Vehicles")
	assert.True(t, ok)
	assert.Equal(t, KindVehicle, k)

	k, ok = ParseKind("staff")
	assert.True(t, ok)
	assert.Equal(t, plans.CategoryUsers, k.Category())

	_, ok = ParseKind("boats")
	assert.False(t, ok)

	k, ok = KindFor(plans.CategoryStorageMB)
	assert.True(t, ok)
	assert.Equal(t, KindDocument, k)
}
