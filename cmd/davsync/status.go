package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/davsync"
	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent sync passes and, optionally, the remote manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			limit, _ := cmd.Flags().GetInt("limit")
			remote, _ := cmd.Flags().GetBool("remote")

			ws, configPath, err := newWorkspace()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !utils.FileExists(ws.JournalPath) {
				fmt.Fprintln(out, "No sync has run yet.")
			} else {
				journal := davsync.NewSyncJournal(ws.JournalPath)
				if err := journal.Open(); err != nil {
					return err
				}
				defer journal.Close()

				if err := printHistory(out, journal, limit); err != nil {
					return err
				}
			}

			if !remote {
				return nil
			}

			cfg, err := config.Load(configPath)
			if errors.Is(err, config.ErrNotConfigured) {
				fmt.Fprintln(out, "Remote: not configured")
				return nil
			} else if err != nil {
				return err
			}

			result, err := davsync.FetchManifest(cmd.Context(), davsync.NewTransport(), cfg.BaseURL, davsync.AuthFromConfig(cfg))
			if err != nil {
				return err
			}
			if !result.Found {
				fmt.Fprintf(out, "Remote %s: no manifest yet\n", cfg.BaseURL)
				return nil
			}
			m := result.Manifest
			fmt.Fprintf(out, "Remote %s: %d files, %s, updated %s\n",
				cfg.BaseURL,
				len(m.Files),
				humanize.Bytes(uint64(m.TotalSize())),
				humanize.Time(time.UnixMilli(m.UpdatedAt)),
			)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "Number of passes to show")
	cmd.Flags().Bool("remote", false, "Also fetch the remote manifest")
	return cmd
}

func printHistory(out io.Writer, journal *davsync.SyncJournal, limit int) error {
	for _, kind := range []string{davsync.PassUpload, davsync.PassRestore} {
		last, err := journal.LastSuccess(kind)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Fprintf(out, "Last %s: never\n", kind)
			continue
		}
		fmt.Fprintf(out, "Last %s: %s (%d files)\n", kind, humanize.Time(last.StartedAt), last.Files)
	}

	passes, err := journal.Recent(limit)
	if err != nil {
		return err
	}
	if len(passes) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	for _, p := range passes {
		status := "ok"
		if p.Failed() {
			status = "failed: " + p.Error
		}
		fmt.Fprintf(out, "%s  %-7s  files=%d up=%d del=%d same=%d %s  %s  %s\n",
			p.StartedAt.Format(time.DateTime),
			p.Kind,
			p.Files,
			p.Uploaded,
			p.Deleted,
			p.Unchanged,
			humanize.Bytes(uint64(p.Bytes)),
			p.Duration.Round(time.Millisecond),
			status,
		)
	}
	return nil
}
