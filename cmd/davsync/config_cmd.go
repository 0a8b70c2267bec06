package main

import (
	"fmt"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the WebDAV sync target",
	}
	cmd.AddCommand(newConfigSetCmd(), newConfigShowCmd())
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save the WebDAV base url and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, configPath, err := newWorkspace()
			if err != nil {
				return err
			}

			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.BaseURL, _ = flags.GetString("url")
			}
			if flags.Changed("username") {
				cfg.Username, _ = flags.GetString("username")
			}
			if flags.Changed("password") {
				cfg.Password, _ = flags.GetString("password")
			}

			if err := cfg.Save(configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved", configPath)
			return nil
		},
	}
	cmd.Flags().String("url", "", "WebDAV base url, e.g. https://dav.example.com/remote.php/dav/files/me/backup")
	cmd.Flags().String("username", "", "WebDAV username (empty disables auth)")
	cmd.Flags().String("password", "", "WebDAV password")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the sync target with the password masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, configPath, err := newWorkspace()
			if err != nil {
				return err
			}

			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:   %s\n", configPath)
			if cfg.BaseURL == "" {
				fmt.Fprintln(out, "base url: (not configured)")
			} else {
				fmt.Fprintf(out, "base url: %s\n", cfg.BaseURL)
			}
			fmt.Fprintf(out, "username: %s\n", cfg.Username)
			fmt.Fprintf(out, "password: %s\n", utils.MaskSecret(cfg.Password))
			return nil
		},
	}
}
