package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/dogcuisine/davsync/internal/version"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, "DavSync")
	logLevel       = new(slog.LevelVar)
	stdoutHandler  slog.Handler
	logCloser      func()
)

var rootCmd = &cobra.Command{
	Use:           version.AppName,
	Short:         "Incremental WebDAV sync of a database and its image directory",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadAppConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("datadir", "d", defaultDataDir, "Data directory")
	rootCmd.PersistentFlags().String("db", "app.db", "Database file, relative to the data directory")
	rootCmd.PersistentFlags().String("images", "images", "Images directory, relative to the data directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Sync config file (default <datadir>/.davsync/config.json)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	stdoutHandler = tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(stdoutHandler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logCloser != nil {
		logCloser()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadAppConfig(cmd *cobra.Command) error {
	flags := cmd.Flags()
	viper.BindPFlag("data_dir", flags.Lookup("datadir"))
	viper.BindPFlag("database", flags.Lookup("db"))
	viper.BindPFlag("images_dir", flags.Lookup("images"))
	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("debug", flags.Lookup("debug"))

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	cfg, err := config.LoadAppConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logLevel.Set(cfg.LogLevel())
	appConfig = cfg
	return nil
}

// setupFileLogging tees logs into path. The log file has no colors and carries
// line numbers and timestamps added by the interceptor.
func setupFileLogging(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: logLevel,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	console := stdoutHandler
	if console == nil {
		console = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(console, fileHandler)))
	logCloser = func() {
		logInterceptor.Close()
		file.Close()
	}
	return nil
}
