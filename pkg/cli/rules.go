package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

func newRulesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Evaluate the manifest's row rules",
		Long:  `Evaluate every rule of the manifest and list how many rows each one fails.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			rules, err := ws.Rules.List(cmd.Context(), ws.ProjectID)
			if err != nil {
				return err
			}

			results := make([]*models.RuleFailure, 0, len(rules))
			for _, rule := range rules {
				failure, err := ws.Rules.Failures(cmd.Context(), ws.ProjectID, rule.ID)
				if err != nil {
					return err
				}
				results = append(results, failure)
			}

			if root.format == FormatJSON {
				return renderJSON(cmd.OutOrStdout(), results)
			}

			t := newTable(cmd.OutOrStdout(), "Rules", table.Row{"Column", "Rule", "Description", "Failed"})
			var failing []models.RuleFailure
			for _, f := range results {
				t.AppendRow(table.Row{f.Table + "." + f.Column, f.RuleType, f.Description, f.FailedCount})
				if f.FailedCount > 0 {
					failing = append(failing, *f)
				}
			}
			t.Render()
			if len(failing) > 0 {
				renderRuleFailures(cmd.OutOrStdout(), failing)
			}
			return nil
		},
	}
	return cmd
}
