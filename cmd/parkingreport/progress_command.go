package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/AndresPaulino/parking-garage-report/internal/progress"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect or reset saved run progress",
	}
	progressCmd.AddCommand(newProgressShowCommand(ctx))
	progressCmd.AddCommand(newProgressClearCommand(ctx))
	return progressCmd
}

func newProgressShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved progress snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store := progress.NewStore(cfg.ProgressPath(), logger)
			out := cmd.OutOrStdout()
			if !store.Exists() {
				fmt.Fprintln(out, "No saved progress; the next run starts fresh.")
				return nil
			}
			snap := store.Current()

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendRow(table.Row{"Completed accounts", len(snap.CompletedAccounts)})
			t.AppendRow(table.Row{"Failed accounts", len(snap.FailedAccounts)})
			t.AppendRow(table.Row{"Batch", fmt.Sprintf("%d of %d", snap.CurrentBatch, snap.TotalBatches)})
			if !snap.BatchCompletedAt.IsZero() {
				t.AppendRow(table.Row{"Last batch checkpoint", snap.BatchCompletedAt.Format(time.RFC3339)})
			}
			if !snap.LastProcessed.IsZero() {
				t.AppendRow(table.Row{"Last account processed", snap.LastProcessed.Format(time.RFC3339)})
			}
			t.Render()

			if len(snap.FailedAccounts) > 0 {
				fmt.Fprintln(out, "\nFailed accounts:")
				for _, name := range snap.FailedAccounts {
					fmt.Fprintf(out, "  - %s\n", name)
				}
			}
			return nil
		},
	}
}

func newProgressClearCommand(ctx *commandContext) *cobra.Command {
	var keepBackup bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete saved progress so the next run starts fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store := progress.NewStore(cfg.ProgressPath(), logger)
			if err := store.Clear(); err != nil {
				return err
			}
			if !keepBackup {
				backup := progress.NewBackup(cfg.BackupPath(), logger)
				if err := backup.Clear(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Progress cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepBackup, "keep-backup", false, "Keep the collected data backup file")
	return cmd
}
