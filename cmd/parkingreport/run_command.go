package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/excel"
	"github.com/AndresPaulino/parking-garage-report/internal/health"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/notifications"
	"github.com/AndresPaulino/parking-garage-report/internal/portal"
	"github.com/AndresPaulino/parking-garage-report/internal/progress"
	"github.com/AndresPaulino/parking-garage-report/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		year      int
		month     int
		startDay  int
		endDay    int
		batchSize int
		accounts  []string
		resume    bool
		output    string
		headless  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect occupancy reports for a month into the workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if batchSize > 0 {
				cfg.Run.BatchSize = batchSize
			}
			if strings.TrimSpace(output) != "" {
				expanded, err := config.ExpandPath(output)
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
				cfg.Output.WorkbookPath = expanded
			}
			if cmd.Flags().Changed("headless") {
				cfg.Portal.Headless = headless
			}

			req, err := buildRequest(year, month, startDay, endDay, accounts, resume)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{Dir: cfg.Output.LogDir, Pattern: "*.log"})

			factory := browser.NewChromeFactory(cfg.Portal, logger)
			fetcher := portal.NewFetcher(cfg.Portal, logger)
			monitor := health.NewMonitor(cfg.Health, logger)
			store := progress.NewStore(cfg.ProgressPath(), logger)
			backup := progress.NewBackup(cfg.BackupPath(), logger)
			writer := excel.NewWriter(cfg.Output.WorkbookPath, logger)
			scheduler := runner.NewScheduler(cfg, factory, fetcher, monitor, store, backup, writer, logger)
			notifier := notifications.NewService(cfg)
			run := runner.NewRunner(cfg, factory, fetcher, scheduler, store, backup, notifier, logger)

			if isatty.IsTerminal(os.Stdout.Fd()) {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("processing reports"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWriter(os.Stdout),
					progressbar.OptionSpinnerType(14),
				)
				scheduler.SetProgressFunc(func(operations int) {
					_ = bar.Add(operations)
				})
				defer func() {
					_ = bar.Finish()
					fmt.Fprintln(os.Stdout)
				}()
			}

			summary, err := run.Run(runCtx, req)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), req, summary)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Report year (defaults to the previous month's year)")
	cmd.Flags().IntVar(&month, "month", 0, "Report month 1-12 (defaults to the previous month)")
	cmd.Flags().IntVar(&startDay, "start-day", 0, "First day to collect (defaults to 1)")
	cmd.Flags().IntVar(&endDay, "end-day", 0, "Last day to collect (defaults to month end)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Accounts per browser session batch")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "Restrict the run to the named account (repeatable)")
	cmd.Flags().BoolVar(&resume, "resume", true, "Resume from prior progress when present")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Workbook path override")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")

	return cmd
}

// buildRequest fills year/month defaults with the most recent full month,
// the usual collection target.
func buildRequest(year, month, startDay, endDay int, accounts []string, resume bool) (runner.Request, error) {
	now := time.Now()
	if month == 0 {
		prev := now.AddDate(0, -1, 0)
		month = int(prev.Month())
		if year == 0 {
			year = prev.Year()
		}
	}
	if year == 0 {
		year = now.Year()
	}
	if month < 1 || month > 12 {
		return runner.Request{}, fmt.Errorf("month %d out of range", month)
	}
	return runner.Request{
		Year:     year,
		Month:    time.Month(month),
		StartDay: startDay,
		EndDay:   endDay,
		Accounts: accounts,
		Resume:   resume,
	}, nil
}

func printSummary(out io.Writer, req runner.Request, summary *runner.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"Month", req.MonthLabel()})
	t.AppendRow(table.Row{"Accounts", summary.TotalAccounts})
	t.AppendRow(table.Row{"Completed", summary.Completed})
	t.AppendRow(table.Row{"Failed", summary.Failed})
	t.AppendRow(table.Row{"Batches", summary.Batches})
	t.AppendRow(table.Row{"Duration", summary.Duration.Round(time.Second)})
	t.AppendRow(table.Row{"Workbook", summary.WorkbookPath})
	if summary.ProgressCleared {
		t.AppendRow(table.Row{"Progress", "cleared (run complete)"})
	} else {
		t.AppendRow(table.Row{"Progress", "retained for resume"})
	}
	t.Render()

	if len(summary.FailedAccounts) > 0 {
		fmt.Fprintln(out, "\nFailed accounts:")
		for _, name := range summary.FailedAccounts {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	}
}
