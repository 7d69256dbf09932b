package portal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// reportPageDriver fakes the report page: it records form interactions and
// answers Evaluate calls from canned table and dropdown data.
type reportPageDriver struct {
	options       []map[string]string
	tableRows     [][]string
	tableMissing  bool
	selected      map[string]string
	fills         map[string]string
	clicks        []string
	selectErr     error
	tablePopCalls int
}

func newReportPageDriver() *reportPageDriver {
	return &reportPageDriver{
		selected: map[string]string{},
		fills:    map[string]string{},
	}
}

func (d *reportPageDriver) Navigate(context.Context, string) error { return nil }

func (d *reportPageDriver) Fill(_ context.Context, selector, value string) error {
	d.fills[selector] = value
	return nil
}

func (d *reportPageDriver) Click(_ context.Context, selector string) error {
	d.clicks = append(d.clicks, selector)
	return nil
}

func (d *reportPageDriver) SelectOption(_ context.Context, selector, value string) error {
	if d.selectErr != nil {
		return d.selectErr
	}
	d.selected[selector] = value
	return nil
}

func (d *reportPageDriver) WaitFor(context.Context, string) error { return nil }

func (d *reportPageDriver) WaitReady(context.Context, string) error { return nil }

func (d *reportPageDriver) Evaluate(_ context.Context, expression string, out any) error {
	var result any
	switch {
	case strings.Contains(expression, "select.options"):
		result = d.options
	case strings.Contains(expression, "table.rows.length"):
		d.tablePopCalls++
		result = !d.tableMissing
	case strings.Contains(expression, "querySelectorAll('tr')"):
		if d.tableMissing {
			result = nil
		} else {
			result = d.tableRows
		}
	default:
		result = nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (d *reportPageDriver) IsAlive(context.Context) bool { return true }

func (d *reportPageDriver) Close() error { return nil }

func newTestFetcher(t *testing.T, driver browser.Driver) (*Fetcher, *browser.Session) {
	t.Helper()
	cfg := config.Default()
	cfg.Portal.ReportTimeout = 2
	sess := browser.NewSession(driver, &cfg, logging.NewNop())
	return NewFetcher(cfg.Portal, logging.NewNop()), sess
}

func TestDiscoverAccountsFiltersPlaceholder(t *testing.T) {
	driver := newReportPageDriver()
	driver.options = []map[string]string{
		{"value": "-1", "text": "All Accounts"},
		{"value": "101", "text": "Garage Alpha"},
		{"value": "102", "text": "Garage Beta"},
	}
	fetcher, sess := newTestFetcher(t, driver)

	// The evaluate expression filters the placeholder before returning, so
	// the fake mirrors the real page by excluding it here.
	driver.options = driver.options[1:]

	accounts, err := fetcher.DiscoverAccounts(context.Background(), sess)
	if err != nil {
		t.Fatalf("DiscoverAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %v", accounts)
	}
	if accounts[0].ID != "101" || accounts[0].Name != "Garage Alpha" {
		t.Fatalf("first account = %+v", accounts[0])
	}
}

func TestDiscoverAccountsEmptyDropdown(t *testing.T) {
	driver := newReportPageDriver()
	fetcher, sess := newTestFetcher(t, driver)

	_, err := fetcher.DiscoverAccounts(context.Background(), sess)
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("empty dropdown error = %v, want extraction failure", err)
	}
}

func TestFetchSevenColumnTable(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableRows = [][]string{
		{"12:00 AM", "1:00 AM", "12", "4", "0", "8", "120"},
		{"1:00 AM", "2:00 AM", "3", "9", "1", "-5", "115"},
	}
	fetcher, sess := newTestFetcher(t, driver)

	account := report.Account{ID: "101", Name: "Garage Alpha"}
	date := report.Date{Year: 2025, Month: 4, Day: 1}
	rows, err := fetcher.Fetch(context.Background(), sess, account, date)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	got := rows[1]
	if got.Date != "04/01/2025" || got.StartTime != "1:00 AM" || got.NetMovement != -5 || got.Occupancy != 115 {
		t.Fatalf("row = %+v", got)
	}

	if driver.selected[selectorAccounts] != "101" {
		t.Fatalf("account selected = %q", driver.selected[selectorAccounts])
	}
	if driver.fills[selectorStartDate] != "04/01/2025" || driver.fills[selectorEndDate] != "04/01/2025" {
		t.Fatalf("date fills = %v", driver.fills)
	}
	if len(driver.clicks) != 1 || driver.clicks[0] != selectorGenerate {
		t.Fatalf("clicks = %v", driver.clicks)
	}
}

func TestFetchFiveColumnTable(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableRows = [][]string{
		{"12:00 AM", "1:00 AM", "12", "4", "0"},
	}
	fetcher, sess := newTestFetcher(t, driver)

	rows, err := fetcher.Fetch(context.Background(), sess,
		report.Account{ID: "101", Name: "Garage Alpha"},
		report.Date{Year: 2025, Month: 4, Day: 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	row := rows[0]
	if row.Entries != 12 || row.Exits != 4 {
		t.Fatalf("row = %+v", row)
	}
	if row.NetMovement != 0 || row.Occupancy != 0 {
		t.Fatalf("short schema should leave trailing fields zero: %+v", row)
	}
}

func TestFetchNonNumericCellsBecomeZero(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableRows = [][]string{
		{"12:00 AM", "1:00 AM", "1,204", "-", "", "n/a", "90"},
	}
	fetcher, sess := newTestFetcher(t, driver)

	rows, err := fetcher.Fetch(context.Background(), sess,
		report.Account{ID: "101", Name: "Garage Alpha"},
		report.Date{Year: 2025, Month: 4, Day: 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	row := rows[0]
	if row.Entries != 1204 {
		t.Fatalf("comma-grouped entries = %d, want 1204", row.Entries)
	}
	if row.Exits != 0 || row.ManualAdjustments != 0 || row.NetMovement != 0 {
		t.Fatalf("placeholder cells should read zero: %+v", row)
	}
	if row.Occupancy != 90 {
		t.Fatalf("occupancy = %d, want 90", row.Occupancy)
	}
}

func TestFetchTruncatedRowIsExtractionError(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableRows = [][]string{
		{"12:00 AM", "1:00 AM", "12"},
	}
	fetcher, sess := newTestFetcher(t, driver)

	_, err := fetcher.Fetch(context.Background(), sess,
		report.Account{ID: "101", Name: "Garage Alpha"},
		report.Date{Year: 2025, Month: 4, Day: 1})
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("truncated row error = %v, want extraction failure", err)
	}
}

func TestFetchMissingTableTimesOut(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableMissing = true
	fetcher, sess := newTestFetcher(t, driver)

	_, err := fetcher.Fetch(context.Background(), sess,
		report.Account{ID: "101", Name: "Garage Alpha"},
		report.Date{Year: 2025, Month: 4, Day: 1})
	if !errors.Is(err, services.ErrNavigationTimeout) {
		t.Fatalf("missing table error = %v, want navigation timeout", err)
	}
	if driver.tablePopCalls == 0 {
		t.Fatal("table readiness never polled")
	}
}

func TestFetchEmptyDataRows(t *testing.T) {
	driver := newReportPageDriver()
	driver.tableRows = [][]string{}
	fetcher, sess := newTestFetcher(t, driver)

	rows, err := fetcher.Fetch(context.Background(), sess,
		report.Account{ID: "101", Name: "Garage Alpha"},
		report.Date{Year: 2025, Month: 4, Day: 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %v, want none", rows)
	}
}
