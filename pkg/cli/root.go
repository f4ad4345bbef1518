// Package cli implements linkcheck, a command-line runner that validates a
// directory of tables described by a manifest file.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrChecksFailed is returned by validate when at least one check failed.
var ErrChecksFailed = errors.New("validation checks failed")

type rootOptions struct {
	manifest string
	format   string
	verbose  bool
}

// NewRootCmd creates the linkcheck root command.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "linkcheck",
		Short: "Discover and validate links between tabular files",
		Long: `linkcheck loads the tables listed in a manifest, suggests links between
their columns and validates every TARGET table against its references,
sources of truth, forbidden lists and row rules.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.format {
			case FormatText, FormatJSON:
				return nil
			default:
				return fmt.Errorf("unknown output format %q", opts.format)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.manifest, "manifest", "m", DefaultManifest, "manifest file")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "f", FormatText, "output format (text|json)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log service activity to stderr")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{FormatText, FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newDiscoverCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newRulesCommand(opts))

	return rootCmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// open loads the manifest and builds its workspace.
func (o *rootOptions) open(ctx context.Context) (*Workspace, error) {
	m, err := LoadManifest(o.manifest)
	if err != nil {
		return nil, err
	}
	logger, err := o.logger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return OpenWorkspace(ctx, m, filepath.Dir(o.manifest), logger)
}
