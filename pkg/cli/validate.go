package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate TARGET tables",
		Long: `Run integrity, reconciliation, forbidden-value and rule checks for the
TARGET tables of the manifest. The command exits non-zero when a check fails.`,
		Example: `  # Validate every TARGET table
  linkcheck validate

  # Validate two tables and print the report as JSON
  linkcheck validate --table ledger --table orders -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := root.open(cmd.Context())
			if err != nil {
				return err
			}

			var ids []uuid.UUID
			for _, name := range tables {
				t, ok := ws.Table(name)
				if !ok {
					return fmt.Errorf("unknown table %q", name)
				}
				ids = append(ids, t.ID)
			}

			report, err := ws.Validation.Validate(cmd.Context(), ws.ProjectID, ids)
			if err != nil {
				return err
			}

			renderWarnings(cmd.ErrOrStderr(), report.Warnings)
			if root.format == FormatJSON {
				if err := renderJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}

			if report.Summary.Failed > 0 {
				return ErrChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&tables, "table", "t", nil, "validate only this table (repeatable)")

	return cmd
}
