package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/spf13/cobra"
)

// runCommand executes sub against a fresh root with appConfig pointed at dataDir.
func runCommand(t *testing.T, dataDir string, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()

	prev := appConfig
	prevLogger := slog.Default()
	appConfig = &config.AppConfig{DataDir: dataDir, Database: "app.db", ImagesDir: "images"}
	t.Cleanup(func() {
		appConfig = prev
		slog.SetDefault(prevLogger)
		if logCloser != nil {
			logCloser()
			logCloser = nil
		}
	})

	root := &cobra.Command{Use: "davsync", SilenceErrors: true, SilenceUsage: true}
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{sub.Name()}, args...))

	err := root.Execute()
	return out.String(), err
}
