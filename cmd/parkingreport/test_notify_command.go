package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndresPaulino/parking-garage-report/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification email",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.NotificationsEnabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are not configured; set [notifications] to and smtp_host in the config file.")
				return nil
			}
			service := notifications.NewService(cfg)
			if err := service.TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent to %s\n", cfg.Notifications.To)
			return nil
		},
	}
}
