package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errRestoreNotConfirmed = errors.New("restore replaces the local database and images, rerun with --yes to continue")

func init() {
	rootCmd.AddCommand(newRestoreCmd())
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace local data with the snapshot on the WebDAV remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errRestoreNotConfirmed
			}
			cmd.SilenceUsage = true

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.loadSyncConfig()
			if err != nil {
				return err
			}

			result, err := a.engine.Restore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d files (%s in %s)\n",
				result.Files,
				humanize.Bytes(uint64(result.Bytes)),
				result.Duration.Round(time.Millisecond),
			)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Confirm replacing local data")
	return cmd
}
