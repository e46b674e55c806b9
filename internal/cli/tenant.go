package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbd888/fieldwork/internal/tenant"
)

func newTenantCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Onboard, list and delete tenants",
	}
	cmd.AddCommand(newTenantOnboardCmd(s), newTenantListCmd(s), newTenantDeleteCmd(s))
	return cmd
}

func newTenantOnboardCmd(s *state) *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:   "onboard <name> <slug>",
		Short: "Create a tenant with a subscription and an admin API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.app.Tenants.Onboard(cmd.Context(), s.actor, args[0], args[1], plan)
			if err != nil {
				return fmt.Errorf("onboard tenant: %w", err)
			}
			t := Table{
				Headers: []string{"ID", "SLUG", "PLAN", "STATUS", "API KEY"},
				Rows: [][]string{{
					out.Tenant.ID, out.Tenant.Slug, out.Subscription.PlanName,
					string(out.Subscription.Status), out.APIKey,
				}},
			}
			if err := s.printer(cmd).Print(out, t); err != nil {
				return err
			}
			if out.Warning != "" {
				s.logger.Warn(out.Warning, "tenant", out.Tenant.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "Starter", "plan name")
	return cmd
}

func newTenantListCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := s.app.Tenants.List(cmd.Context(), s.actor)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}
			return s.printer(cmd).Print(ts, tenantTable(ts))
		},
	}
}

func tenantTable(ts []*tenant.Tenant) Table {
	t := Table{Headers: []string{"ID", "NAME", "SLUG", "CREATED"}}
	for _, tn := range ts {
		t.Rows = append(t.Rows, []string{tn.ID, tn.Name, tn.Slug, tn.CreatedAt.Format("2006-01-02")})
	}
	return t
}

func newTenantDeleteCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Delete a tenant with its resources, subscription and keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.Tenants.Delete(cmd.Context(), s.actor, args[0]); err != nil {
				return fmt.Errorf("delete tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deleted.\n", args[0])
			return nil
		},
	}
}
