package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAuditCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report tenants whose usage exceeds their plan caps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := s.app.Audit.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}

			t := Table{Headers: []string{"TENANT", "PLAN", "CATEGORY", "CURRENT", "CAP", "EXCESS"}}
			for _, f := range rep.Findings {
				t.Rows = append(t.Rows, []string{
					f.TenantID, f.Plan, string(f.Category),
					strconv.FormatInt(f.Current, 10), strconv.FormatInt(f.Cap, 10), strconv.FormatInt(f.Excess, 10),
				})
			}
			if err := s.printer(cmd).Print(rep, t); err != nil {
				return err
			}
			for _, id := range rep.Failed {
				s.logger.Warn("usage unreadable, tenant skipped", "tenant", id)
			}
			return nil
		},
	}
}
