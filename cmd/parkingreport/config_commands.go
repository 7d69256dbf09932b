package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set the portal username and password (or export PARKONECT_USERNAME / PARKONECT_PASSWORD) before running.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Configuration file: %s\n\n", path)
			} else {
				fmt.Fprintln(out, "No configuration file found; showing defaults.")
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Portal URL:       %s\n", cfg.Portal.BaseURL)
			fmt.Fprintf(out, "Username:         %s\n", redact(cfg.Portal.Username))
			fmt.Fprintf(out, "Headless:         %v\n", cfg.Portal.Headless)
			fmt.Fprintf(out, "Batch size:       %d\n", cfg.Run.BatchSize)
			fmt.Fprintf(out, "Fetch attempts:   %d\n", cfg.Run.FetchAttempts)
			fmt.Fprintf(out, "Workbook:         %s\n", cfg.Output.WorkbookPath)
			fmt.Fprintf(out, "State directory:  %s\n", cfg.Output.StateDir)
			fmt.Fprintf(out, "Log directory:    %s\n", cfg.Output.LogDir)
			if cfg.NotificationsEnabled() {
				fmt.Fprintf(out, "Notifications:    %s via %s:%d\n",
					cfg.Notifications.To, cfg.Notifications.SMTPHost, cfg.Notifications.SMTPPort)
			} else {
				fmt.Fprintln(out, "Notifications:    disabled")
			}
			return nil
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Configuration at %s is valid.\n", path)
			} else {
				fmt.Fprintln(out, "No configuration file found; defaults are valid.")
			}
			return nil
		},
	}
}

func redact(value string) string {
	if value == "" {
		return "(unset)"
	}
	return value
}
