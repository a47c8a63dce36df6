package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"arcsync/internal/config"
	"arcsync/internal/etl/sources"
	"arcsync/internal/logging"
)

func newPreviewCmd(configPath *string) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the first mapped features as JSON without publishing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows < 1 {
				return fmt.Errorf("-n must be at least 1")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)

			src, err := sources.New(cfg)
			if err != nil {
				return err
			}
			preview, err := newEngine(cfg, src, nil).Preview(cmd.Context(), rows)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(preview)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "Number of records to preview")
	return cmd
}
