// Package app assembles the entitlement engine from configuration. The HTTP
// server and the fieldctl CLI share it so both see the same stores and
// enforcement settings.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mbd888/fieldwork/internal/audit"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/circuitbreaker"
	"github.com/mbd888/fieldwork/internal/config"
	"github.com/mbd888/fieldwork/internal/database"
	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/resources"
	"github.com/mbd888/fieldwork/internal/subscription"
	"github.com/mbd888/fieldwork/internal/tenant"
	"github.com/mbd888/fieldwork/internal/usage"
)

// App holds the wired services.
type App struct {
	DB            *sql.DB // nil when running on memory stores
	Auth          *auth.Manager
	Catalog       *plans.Catalog
	Subscriptions *subscription.Service
	Counter       *usage.Counter
	Gate          *entitlement.Gate
	Resources     *resources.Service
	Tenants       *tenant.Service
	Audit         *audit.Runner
}

// Options tune Build.
type Options struct {
	// Migrate applies the embedded migrations after connecting.
	Migrate bool
	// DB reuses an open pool instead of dialing cfg.DatabaseURL.
	DB *sql.DB
}

type stores struct {
	auth    auth.Store
	plans   plans.Store
	subs    subscription.Store
	res     resources.Store
	tenants tenant.Store
}

// Build wires every component. With an empty DATABASE_URL and no DB option
// memory stores are used.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{DB: opts.DB}

	if a.DB == nil && cfg.DatabaseURL != "" {
		dbOpts := database.DefaultOptions()
		dbOpts.MaxOpenConns = cfg.DBMaxOpenConns
		dbOpts.MaxIdleConns = cfg.DBMaxIdleConns
		db, err := database.Open(ctx, cfg.DatabaseURL, dbOpts, logger)
		if err != nil {
			return nil, err
		}
		a.DB = db
		logger.Info("using PostgreSQL storage", "url", database.MaskDSN(cfg.DatabaseURL))
	}

	var st stores
	if a.DB != nil {
		if opts.Migrate {
			if err := database.Migrate(ctx, a.DB); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		st = stores{
			auth:    auth.NewPostgresStore(a.DB),
			plans:   plans.NewPostgresStore(a.DB),
			subs:    subscription.NewPostgresStore(a.DB),
			res:     resources.NewPostgresStore(a.DB),
			tenants: tenant.NewPostgresStore(a.DB),
		}
	} else {
		logger.Info("using in-memory storage (data will not persist)")
		st = stores{
			auth:    auth.NewMemoryStore(),
			plans:   plans.NewMemoryStore(),
			subs:    subscription.NewMemoryStore(),
			res:     resources.NewMemoryStore(),
			tenants: tenant.NewMemoryStore(),
		}
	}

	a.Auth = auth.NewManager(st.auth)
	a.Catalog = plans.NewCatalog(st.plans, st.subs,
		plans.WithDeletePolicy(plans.DeletePolicy(cfg.PlanDeletePolicy)),
		plans.WithLogger(logger),
	)
	a.Subscriptions = subscription.NewService(st.subs, a.Catalog, subscription.WithLogger(logger))
	counterOpts := []usage.Option{
		usage.WithPolicy(usage.Policy(cfg.CountFailurePolicy)),
		usage.WithLogger(logger),
	}
	if cfg.CountBreakerThreshold > 0 {
		counterOpts = append(counterOpts, usage.WithBreaker(circuitbreaker.New(
			cfg.CountBreakerThreshold, cfg.CountBreakerCooldown,
			circuitbreaker.WithOnTransition(func(category string, from, to circuitbreaker.State) {
				logger.Warn("usage count circuit changed", "category", category, "from", from.String(), "to", to.String())
			}),
		)))
	}
	a.Counter = usage.NewCounter(st.res, counterOpts...)
	a.Gate = entitlement.NewGate(a.Subscriptions, a.Catalog, a.Counter,
		entitlement.WithCapSource(entitlement.CapSource(cfg.CapSource)),
		entitlement.WithLogger(logger),
	)
	a.Subscriptions.SetPlanChangeGuard(a.Gate)
	a.Resources = resources.NewService(st.res, a.Gate,
		resources.WithMode(resources.Mode(cfg.EnforcementMode)),
		resources.WithLogger(logger),
	)
	a.Tenants = tenant.NewService(st.tenants, a.Subscriptions, a.Resources,
		tenant.WithKeys(a.Auth),
		tenant.WithLogger(logger),
	)
	a.Audit = audit.NewRunner(a.Subscriptions, a.Gate, logger)

	if cfg.SeedDefaultPlans {
		n, err := a.Catalog.Seed(ctx, plans.DefaultPlans()...)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("seed plans: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default plans", "count", n)
		}
	}

	logger.Info("entitlement engine ready",
		"enforcement_mode", cfg.EnforcementMode,
		"count_failure_policy", cfg.CountFailurePolicy,
		"cap_source", cfg.CapSource,
		"plan_delete_policy", cfg.PlanDeletePolicy,
	)
	return a, nil
}

// Close releases the database pool, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
