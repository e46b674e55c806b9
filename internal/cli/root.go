// Package cli implements fieldctl, the operator command line for the
// entitlement engine. It talks to the database directly through the same
// services as the HTTP server.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/fieldwork/internal/app"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/config"
	"github.com/mbd888/fieldwork/internal/logging"
)

// Option configures the root command.
type Option func(*state)

// WithApp injects pre-wired services (tests).
func WithApp(a *app.App) Option {
	return func(s *state) { s.app = a }
}

// WithLogWriter redirects diagnostics; stderr by default.
func WithLogWriter(w io.Writer) Option {
	return func(s *state) { s.logOut = w }
}

type state struct {
	app      *app.App
	owned    bool
	logOut   io.Writer
	logger   *slog.Logger
	output   string
	dbURL    string
	logLevel string
	actor    auth.Principal
}

func (s *state) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(cmd.OutOrStdout(), s.output)
}

// NewRootCmd builds the fieldctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	s := &state{logOut: os.Stderr, actor: auth.SuperAdmin("fieldctl")}
	for _, opt := range opts {
		opt(s)
	}

	root := &cobra.Command{
		Use:   "fieldctl",
		Short: "Manage plans, tenants and entitlements",
		Long: `fieldctl administers the fieldwork entitlement engine: the plan catalog,
tenant onboarding, subscription state, and limit checks. It reads the same
environment as the server (DATABASE_URL, ENFORCEMENT_MODE, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if s.owned && s.app != nil {
				return s.app.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&s.output, "output", "o", FormatTable, "output format: table, json, yaml")
	root.PersistentFlags().StringVar(&s.dbURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newPlanCmd(s),
		newTenantCmd(s),
		newSubscriptionCmd(s),
		newCheckCmd(s),
		newUsageCmd(s),
		newAuditCmd(s),
	)
	return root
}

func (s *state) open(ctx context.Context) error {
	if s.app != nil {
		if s.logger == nil {
			s.logger = logging.NewWithWriter(s.logOut, "error", "text")
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if s.dbURL != "" {
		cfg.DatabaseURL = s.dbURL
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	// Quiet by default; wiring chatter is for the server log.
	level := cfg.LogLevel
	if s.logLevel == "" {
		level = "warn"
	}
	s.logger = logging.NewWithWriter(s.logOut, level, "text")

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL (or --database-url) is required")
	}

	// Seeding is left to the server so a CLI run never writes the catalog
	// implicitly.
	cfg.SeedDefaultPlans = false
	a, err := app.Build(ctx, cfg, s.logger, app.Options{})
	if err != nil {
		return err
	}
	s.app = a
	s.owned = true
	return nil
}

// Execute runs fieldctl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
