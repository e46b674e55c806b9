package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbd888/fieldwork/internal/plans"
)

// ErrDenied is returned by check --fail when the verdict denies.
var ErrDenied = errors.New("entitlement denied")

func newCheckCmd(s *state) *cobra.Command {
	var fail bool
	cmd := &cobra.Command{
		Use:   "check <tenant-id> <category>",
		Short: "Ask whether a tenant may add one more resource of a category",
		Example: `  fieldctl check ten_123 max_vehicles
  fieldctl check ten_123 vehicles --fail   # exit 1 when denied`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := plans.ParseCategory(args[1])
			if !ok {
				cat = plans.Category(args[1])
			}
			v := s.app.Gate.CheckLimit(cmd.Context(), args[0], cat)

			t := Table{
				Headers: []string{"ALLOWED", "REASON", "CURRENT", "CAP", "MESSAGE"},
				Rows: [][]string{{
					strconv.FormatBool(v.Allowed), string(v.Reason),
					strconv.FormatInt(v.Current, 10), strconv.FormatInt(v.Cap, 10), v.Message,
				}},
			}
			if err := s.printer(cmd).Print(v, t); err != nil {
				return err
			}
			if fail && !v.Allowed {
				return fmt.Errorf("%w: %s", ErrDenied, v.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fail, "fail", false, "exit non-zero when the check denies")
	return cmd
}

func newUsageCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <tenant-id>",
		Short: "Show current usage against every cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := s.app.Gate.Usage(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("usage: %w", err)
			}

			t := Table{Headers: []string{"CATEGORY", "CURRENT", "CAP", "REMAINING"}}
			for _, c := range plans.Categories {
				u, ok := usage[c]
				if !ok {
					continue
				}
				capStr := strconv.FormatInt(u.Cap, 10)
				if !u.Enabled {
					capStr = "disabled"
				}
				t.Rows = append(t.Rows, []string{
					string(c), strconv.FormatInt(u.Current, 10), capStr, strconv.FormatInt(u.Remaining, 10),
				})
			}
			return s.printer(cmd).Print(usage, t)
		},
	}
}
