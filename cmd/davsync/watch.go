package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dogcuisine/davsync/internal/davsync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload automatically whenever the data directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			debounce, _ := cmd.Flags().GetDuration("debounce")
			interval, _ := cmd.Flags().GetDuration("interval")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			auto := davsync.NewEngineAutoSync(a.engine, a.loadSyncConfig)

			watcher := davsync.NewFileWatcher(a.ws.Root, func() { auto.Request() })
			watcher.SetDebounceTimeout(debounce)
			watcher.FilterPaths(a.watchFilter(auto.IsRunning))

			eg, ctx := errgroup.WithContext(cmd.Context())

			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()

			eg.Go(func() error {
				return auto.Run(ctx)
			})

			if interval > 0 {
				eg.Go(func() error {
					return requestEvery(ctx, auto, interval)
				})
			}

			// catch up on anything changed while not watching
			auto.Request()

			slog.Info("watching", "dir", a.ws.Root, "debounce", debounce, "interval", interval)
			defer slog.Info("Bye!")
			return eg.Wait()
		},
	}
	cmd.Flags().Duration("debounce", 2*time.Second, "Quiet period after a change before syncing")
	cmd.Flags().Duration("interval", 0, "Also sync on this interval (0 disables)")
	return cmd
}

func requestEvery(ctx context.Context, auto *davsync.AutoSync, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			auto.Request()
		}
	}
}
