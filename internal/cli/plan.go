package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbd888/fieldwork/internal/plans"
)

func newPlanCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage the plan catalog",
	}
	cmd.AddCommand(newPlanListCmd(s), newPlanCreateCmd(s), newPlanDeleteCmd(s))
	return cmd
}

func newPlanListCmd(s *state) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans, cheapest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := s.app.Catalog.List
			if all {
				list = s.app.Catalog.ListAll
			}
			ps, err := list(cmd.Context())
			if err != nil {
				return fmt.Errorf("list plans: %w", err)
			}
			return s.printer(cmd).Print(ps, planTable(ps))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deprecated plans")
	return cmd
}

func planTable(ps []*plans.Plan) Table {
	t := Table{Headers: []string{"NAME", "PRICE"}}
	for _, c := range plans.Categories {
		t.Headers = append(t.Headers, strings.ToUpper(string(c)))
	}
	t.Headers = append(t.Headers, "MODULES", "ID")

	for _, p := range ps {
		name := p.Name
		if p.Deprecated() {
			name += " (deprecated)"
		}
		row := []string{name, p.Price.String()}
		for _, c := range plans.Categories {
			row = append(row, strconv.FormatInt(p.Caps[c], 10))
		}
		row = append(row, strings.Join(p.Modules, ","), p.ID)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func newPlanCreateCmd(s *state) *cobra.Command {
	var (
		price    int64
		currency string
		caps     map[string]int64
		modules  []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Add a plan to the catalog",
		Example: `  fieldctl plan create Growth --price 4900 \
    --cap max_users=5 --cap max_vehicles=3 --cap max_clients=200 \
    --cap max_properties=100 --cap max_storage_mb=2000 --module scheduling`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := plans.NewPlan{
				Name:    args[0],
				Price:   plans.Money{Amount: price, Currency: strings.ToUpper(currency)},
				Caps:    make(map[plans.Category]int64, len(caps)),
				Modules: modules,
			}
			for k, v := range caps {
				c, ok := plans.ParseCategory(k)
				if !ok {
					return fmt.Errorf("unknown category %q", k)
				}
				in.Caps[c] = v
			}

			p, err := s.app.Catalog.Create(cmd.Context(), s.actor, in)
			if err != nil {
				return fmt.Errorf("create plan: %w", err)
			}
			return s.printer(cmd).Print(p, planTable([]*plans.Plan{p}))
		},
	}
	cmd.Flags().Int64Var(&price, "price", 0, "monthly price in minor units (cents)")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringToInt64Var(&caps, "cap", nil, "category cap, e.g. max_vehicles=3 (repeatable)")
	cmd.Flags().StringSliceVar(&modules, "module", nil, "enabled module (repeatable)")
	return cmd
}

func newPlanDeleteCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name|id>",
		Short: "Remove a plan, or deprecate it under PLAN_DELETE_POLICY=deprecate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			if p, err := s.app.Catalog.GetByName(ctx, args[0]); err == nil {
				id = p.ID
			} else if !errors.Is(err, plans.ErrPlanNotFound) {
				return err
			}

			deprecated, err := s.app.Catalog.Delete(ctx, s.actor, id)
			if err != nil {
				return fmt.Errorf("delete plan: %w", err)
			}
			verb := "deleted"
			if deprecated {
				verb = "deprecated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s %s.\n", args[0], verb)
			return nil
		},
	}
}
