package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// Report page control IDs. btnGenarate is the portal's own misspelling.
const (
	selectorAccounts  = "#ctl00_cphBody_ddlAccounts"
	selectorStartDate = "#ctl00_cphBody_txtStartDate"
	selectorEndDate   = "#ctl00_cphBody_txtEndDate"
	selectorGenerate  = "#ctl00_cphBody_btnGenarate"

	// allAccountsValue is the dropdown's placeholder option, never a real
	// account.
	allAccountsValue = "-1"

	navigationAttempts = 3
	navigationDelay    = 2 * time.Second
)

// Fetcher runs report generations against an authenticated session.
type Fetcher struct {
	cfg    config.Portal
	logger *slog.Logger
}

// NewFetcher builds a Fetcher from the portal settings.
func NewFetcher(cfg config.Portal, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "portal"),
	}
}

// OpenReports navigates the session to the report page, retrying transient
// navigation failures. Session-death and authentication errors abort
// immediately since a retry on a dead target cannot succeed.
func (f *Fetcher) OpenReports(ctx context.Context, session *browser.Session) error {
	var lastErr error
	for attempt := 1; attempt <= navigationAttempts; attempt++ {
		err := session.OpenReportPage(ctx)
		if err == nil {
			return nil
		}
		if services.RequiresSessionRestart(err) {
			return err
		}
		lastErr = err
		f.logger.Warn("report page navigation failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
		if attempt < navigationAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(navigationDelay):
			}
		}
	}
	return services.Wrap(services.ErrNavigationTimeout, "portal", "open_reports",
		fmt.Sprintf("report page unreachable after %d attempts", navigationAttempts), lastErr)
}

// DiscoverAccounts reads the account dropdown and returns every real account
// in portal order. The placeholder "all accounts" option is excluded.
func (f *Fetcher) DiscoverAccounts(ctx context.Context, session *browser.Session) ([]report.Account, error) {
	if err := session.Driver().WaitFor(ctx, selectorAccounts); err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`(() => {
		const select = document.querySelector(%q);
		if (!select) { return []; }
		return Array.from(select.options)
			.map(opt => ({ value: opt.value, text: opt.text.trim() }))
			.filter(opt => opt.value !== %q);
	})()`, selectorAccounts, allAccountsValue)

	var options []struct {
		Value string `json:"value"`
		Text  string `json:"text"`
	}
	if err := session.Driver().Evaluate(ctx, expr, &options); err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "portal", "discover_accounts",
			"account dropdown has no selectable accounts", nil)
	}
	accounts := make([]report.Account, 0, len(options))
	for _, opt := range options {
		if opt.Value == "" || opt.Text == "" {
			continue
		}
		accounts = append(accounts, report.Account{ID: opt.Value, Name: opt.Text})
	}
	f.logger.Info("discovered accounts", logging.Int("count", len(accounts)))
	return accounts, nil
}

// Fetch generates the single-day report for (account, date) and returns its
// data rows in table order. One attempt, no internal retries.
func (f *Fetcher) Fetch(ctx context.Context, session *browser.Session, account report.Account, date report.Date) ([]report.Row, error) {
	driver := session.Driver()
	day := date.String()

	if err := driver.SelectOption(ctx, selectorAccounts, account.ID); err != nil {
		return nil, err
	}
	if err := driver.Fill(ctx, selectorStartDate, day); err != nil {
		return nil, err
	}
	if err := driver.Fill(ctx, selectorEndDate, day); err != nil {
		return nil, err
	}
	if err := driver.Click(ctx, selectorGenerate); err != nil {
		return nil, err
	}
	if err := f.waitForTable(ctx, driver); err != nil {
		return nil, err
	}

	cells, err := f.extractCells(ctx, driver)
	if err != nil {
		return nil, err
	}
	return f.parseRows(cells, account, day)
}

// waitForTable polls until the result table holds more than the header and
// totals rows. Generation on the portal is a postback, so the table element
// exists before its data does.
func (f *Fetcher) waitForTable(ctx context.Context, driver browser.Driver) error {
	timeout := time.Duration(f.cfg.ReportTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := browser.PollUntil(waitCtx, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		var populated bool
		expr := `(() => {
			const table = document.querySelector('table');
			return !!table && table.rows.length > 2;
		})()`
		if err := driver.Evaluate(ctx, expr, &populated); err != nil {
			return false, err
		}
		return populated, nil
	})
	if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
		return services.Wrap(services.ErrNavigationTimeout, "portal", "wait_table",
			"result table did not populate", err)
	}
	return err
}

// extractCells pulls the table's data rows as cell text, skipping the first
// (header) and last (totals) rows. Cells wrapping their value in a link
// resolve to the link text.
func (f *Fetcher) extractCells(ctx context.Context, driver browser.Driver) ([][]string, error) {
	expr := `(() => {
		const table = document.querySelector('table');
		if (!table) { return null; }
		const rows = Array.from(table.querySelectorAll('tr')).slice(1, -1);
		return rows.map(row => Array.from(row.querySelectorAll('td')).map(cell => {
			const link = cell.querySelector('a');
			return (link ? link.innerText : cell.innerText).trim();
		}));
	})()`
	var cells [][]string
	if err := driver.Evaluate(ctx, expr, &cells); err != nil {
		return nil, err
	}
	if cells == nil {
		return nil, services.Wrap(services.ErrExtraction, "portal", "extract", "result table missing", nil)
	}
	return cells, nil
}

// parseRows maps extracted cell text positionally onto report rows. The
// portal has shipped two table widths: five columns (through manual
// adjustments) and seven (adding net movement and occupancy). Both parse;
// the short schema leaves the trailing fields zero.
func (f *Fetcher) parseRows(cells [][]string, account report.Account, day string) ([]report.Row, error) {
	rows := make([]report.Row, 0, len(cells))
	for i, cell := range cells {
		if len(cell) < 5 {
			return nil, services.Wrap(services.ErrExtraction, "portal", "parse",
				fmt.Sprintf("row %d has %d cells, need at least 5", i+1, len(cell)), nil)
		}
		row := report.Row{
			Date:              day,
			StartTime:         cell[0],
			EndTime:           cell[1],
			Entries:           f.parseCount(account, day, "entries", cell[2]),
			Exits:             f.parseCount(account, day, "exits", cell[3]),
			ManualAdjustments: f.parseCount(account, day, "manual_adjustments", cell[4]),
		}
		if len(cell) >= 7 {
			row.NetMovement = f.parseCount(account, day, "net_movement", cell[5])
			row.Occupancy = f.parseCount(account, day, "occupancy", cell[6])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseCount converts a numeric cell to an int. Empty, dash, and otherwise
// non-numeric cells count as zero with a warning; boundary rows are known to
// carry placeholders.
func (f *Fetcher) parseCount(account report.Account, day, field, raw string) int {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if text == "" || text == "-" {
		return 0
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		f.logger.Warn("non-numeric report cell treated as zero",
			logging.String(logging.FieldAccount, account.Name),
			logging.String(logging.FieldDate, day),
			logging.String("field", field),
			logging.String("cell", raw))
		return 0
	}
	return value
}
