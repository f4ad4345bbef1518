package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

func newDiscoverCommand(root *rootOptions) *cobra.Command {
	var (
		mode  string
		write bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Suggest links between table columns",
		Long: `Suggest key mappings from SOURCE tables and references between TARGET
tables. Columns already linked in the manifest are not suggested again.
With --write the suggestions are added to the manifest.`,
		Example: `  # Show every suggestion
  linkcheck discover

  # Only source-of-truth key mappings, saved to the manifest
  linkcheck discover --mode mappings --write`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			discoveryMode, ok := services.ParseDiscoveryMode(mode)
			if !ok {
				return fmt.Errorf("unknown discovery mode %q", mode)
			}

			ws, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			result, err := ws.Discovery.Discover(cmd.Context(), ws.ProjectID, discoveryMode)
			if err != nil {
				return err
			}

			renderWarnings(cmd.ErrOrStderr(), result.Warnings)
			if root.format == FormatJSON {
				if err := renderJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				renderSuggestions(cmd.OutOrStdout(), result.Suggestions)
			}

			if !write || len(result.Suggestions) == 0 {
				return nil
			}
			for _, s := range result.Suggestions {
				ws.Manifest.SetLink(linkFromSuggestion(s))
			}
			if err := ws.Manifest.Save(root.manifest); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s to %s\n", services.CountNoun(len(result.Suggestions), "link"), root.manifest)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(services.DiscoveryModeAll), "suggestion kinds: all, mappings or references")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "add the suggestions to the manifest")

	return cmd
}

func linkFromSuggestion(s models.LinkSuggestion) LinkSpec {
	return LinkSpec{
		Checked:   s.TargetTable + "." + s.TargetColumn,
		Reference: s.SourceTable + "." + s.SourceColumn,
		Key:       s.IsKey,
	}
}
