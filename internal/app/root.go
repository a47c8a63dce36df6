// Package app wires the command-line interface: it loads settings, builds
// the pipeline and reports the outcome of a run.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"arcsync/internal/config"
)

// Version is set at build time.
var Version = "dev"

// newRootCmd builds the command tree. Running the root command is the same
// as running "sync".
func newRootCmd() *cobra.Command {
	var configPath string
	var syncOpts syncOptions

	root := &cobra.Command{
		Use:   "arcsync",
		Short: "Publish CSV or database records to an ArcGIS hosted feature layer",
		Long: `arcsync reads records from a CSV file or a database table, maps and
validates them, builds point, polygon or polyline geometry and publishes the
valid features to an ArcGIS Online or Enterprise hosted feature layer.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), configPath, syncOpts)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	bindSyncFlags(root, &syncOpts)

	root.AddCommand(
		newSyncCmd(&configPath),
		newPreviewCmd(&configPath),
		newInitCmd(),
		newHistoryCmd(&configPath),
	)
	return root
}

// Execute runs the CLI and exits with status 1 on any fatal error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
