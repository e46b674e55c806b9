package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbd888/fieldwork/internal/subscription"
)

func newSubscriptionCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Inspect and change a tenant's subscription",
	}
	cmd.AddCommand(newSubGetCmd(s), newSubStatusCmd(s), newSubPlanCmd(s))
	return cmd
}

func subscriptionTable(sub *subscription.Subscription) Table {
	return Table{
		Headers: []string{"TENANT", "PLAN", "STATUS", "START"},
		Rows: [][]string{{
			sub.TenantID, sub.PlanName, string(sub.Status), sub.StartDate.Format("2006-01-02"),
		}},
	}
}

func newSubGetCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show a tenant's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := s.app.Subscriptions.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get subscription: %w", err)
			}
			return s.printer(cmd).Print(sub, subscriptionTable(sub))
		},
	}
}

func newSubStatusCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:       "status <tenant-id> <active|suspended>",
		Short:     "Activate or suspend a subscription",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(subscription.StatusActive), string(subscription.StatusSuspended)},
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := s.app.Subscriptions.SetStatus(cmd.Context(), s.actor, args[0], subscription.Status(args[1]))
			if err != nil {
				return fmt.Errorf("set status: %w", err)
			}
			return s.printer(cmd).Print(sub, subscriptionTable(sub))
		},
	}
}

func newSubPlanCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <tenant-id> <plan>",
		Short: "Move a tenant to another plan",
		Long:  "Downgrades are refused while current usage exceeds the target plan's caps.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := s.app.Subscriptions.ChangePlan(cmd.Context(), s.actor, args[0], args[1])
			if err != nil {
				return fmt.Errorf("change plan: %w", err)
			}
			return s.printer(cmd).Print(sub, subscriptionTable(sub))
		},
	}
}
