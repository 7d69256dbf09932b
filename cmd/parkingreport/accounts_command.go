package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/AndresPaulino/parking-garage-report/internal/accounts"
	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/portal"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
)

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account roster utilities",
	}
	accountsCmd.AddCommand(newAccountsListCommand(ctx))
	accountsCmd.AddCommand(newAccountsMatchCommand(ctx))
	return accountsCmd
}

func newAccountsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Discover and print the portal's account roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := discoverRoster(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name"})
			for _, account := range roster {
				t.AppendRow(table.Row{account.ID, account.Name})
			}
			t.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d accounts\n", len(roster))
			return nil
		},
	}
}

func newAccountsMatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "match NAME...",
		Short: "Match external account names against the portal roster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := discoverRoster(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			matcher := accounts.NewMatcher(roster)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Query", "Status", "Best Match", "Confidence", "Strategy"})
			for _, name := range args {
				result := matcher.Match(name)
				if best, ok := result.Best(); ok {
					t.AppendRow(table.Row{
						name, result.Status, best.Account.Name,
						fmt.Sprintf("%.2f", best.Confidence), best.Strategy,
					})
				} else {
					t.AppendRow(table.Row{name, result.Status, "-", "-", "-"})
				}
			}
			t.Render()
			return nil
		},
	}
}

// discoverRoster opens a short-lived authenticated session just long enough
// to read the account dropdown.
func discoverRoster(cmdCtx context.Context, ctx *commandContext) ([]report.Account, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}

	factory := browser.NewChromeFactory(cfg.Portal, logger)
	driver, err := factory(cmdCtx)
	if err != nil {
		return nil, err
	}
	session := browser.NewSession(driver, cfg, logger)
	defer session.Close()

	if err := session.Login(cmdCtx); err != nil {
		return nil, err
	}
	fetcher := portal.NewFetcher(cfg.Portal, logger)
	if err := fetcher.OpenReports(cmdCtx, session); err != nil {
		return nil, err
	}
	return fetcher.DiscoverAccounts(cmdCtx, session)
}
