package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newUploadCmd())
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload local changes to the WebDAV remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result, err := a.engine.Upload(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.FirstUpload {
				fmt.Fprintln(out, "First upload to", cfg.BaseURL)
			}
			fmt.Fprintf(out, "Uploaded %d, deleted %d, unchanged %d (%s in %s)\n",
				len(result.Uploaded),
				len(result.Deleted),
				result.Unchanged,
				humanize.Bytes(uint64(result.BytesUploaded)),
				result.Duration.Round(time.Millisecond),
			)
			return nil
		},
	}
}
