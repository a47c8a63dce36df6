package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arcsync/internal/config"
	"arcsync/internal/storage"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return errors.New("run history is disabled: set history.path in the settings file")
			}

			db, err := storage.Open(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()

			logs, err := storage.NewHistoryStore(db).List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if len(logs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			return printHistory(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
