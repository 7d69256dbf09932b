package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/health"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/progress"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// loginDriver is the minimal Driver that lets Session.Login succeed (or fail
// with rejected credentials when authFail is set).
type loginDriver struct {
	authFail bool
	alive    bool
	closed   bool
}

func (d *loginDriver) Navigate(context.Context, string) error          { return nil }
func (d *loginDriver) Fill(context.Context, string, string) error     { return nil }
func (d *loginDriver) Click(context.Context, string) error            { return nil }
func (d *loginDriver) SelectOption(context.Context, string, string) error { return nil }
func (d *loginDriver) WaitFor(context.Context, string) error          { return nil }
func (d *loginDriver) WaitReady(context.Context, string) error        { return nil }

func (d *loginDriver) Evaluate(_ context.Context, expression string, out any) error {
	if ptr, ok := out.(*string); ok {
		if d.authFail {
			if expression == "window.location.href" {
				*ptr = "https://secure.parkonect.com/Admin/Login.aspx"
			} else {
				*ptr = "Invalid user name or password."
			}
		} else if expression == "window.location.href" {
			*ptr = "https://secure.parkonect.com/Admin/Default.aspx"
		}
	}
	return nil
}

func (d *loginDriver) IsAlive(context.Context) bool { return d.alive }

func (d *loginDriver) Close() error {
	d.closed = true
	return nil
}

// sessionFactory counts launches and can fail logins for the first N
// sessions.
type sessionFactory struct {
	mu        sync.Mutex
	launches  int
	authFails int
	launchErr error
}

func (f *sessionFactory) factory() browser.Factory {
	return func(context.Context) (browser.Driver, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.launches++
		if f.launchErr != nil {
			return nil, f.launchErr
		}
		d := &loginDriver{alive: true}
		if f.authFails > 0 {
			f.authFails--
			d.authFail = true
		}
		return d, nil
	}
}

func (f *sessionFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// scriptedFetcher serves one row per (account, date) and fails scripted
// (account, date) pairs a set number of times before succeeding.
type scriptedFetcher struct {
	mu       sync.Mutex
	calls    int
	failures map[string]int
	failWith map[string]error
	accounts []report.Account
}

func newScriptedFetcher(accounts ...report.Account) *scriptedFetcher {
	return &scriptedFetcher{
		failures: map[string]int{},
		failWith: map[string]error{},
		accounts: accounts,
	}
}

func key(account report.Account, date report.Date) string {
	return account.Name + "|" + date.String()
}

// failTimes scripts n consecutive failures for (account, date); n < 0 means
// fail forever.
func (f *scriptedFetcher) failTimes(account report.Account, date report.Date, n int, err error) {
	f.failures[key(account, date)] = n
	f.failWith[key(account, date)] = err
}

func (f *scriptedFetcher) OpenReports(context.Context, *browser.Session) error { return nil }

func (f *scriptedFetcher) DiscoverAccounts(context.Context, *browser.Session) ([]report.Account, error) {
	return f.accounts, nil
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ *browser.Session, account report.Account, date report.Date) ([]report.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	k := key(account, date)
	if remaining, ok := f.failures[k]; ok && remaining != 0 {
		if remaining > 0 {
			f.failures[k] = remaining - 1
		}
		return nil, f.failWith[k]
	}
	return []report.Row{{
		Date:      date.String(),
		StartTime: "12:00 AM",
		EndTime:   "1:00 AM",
		Entries:   1,
		Exits:     1,
		Occupancy: 10,
	}}, nil
}

func (f *scriptedFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memoryWriter records sheet saves without touching xlsx.
type memoryWriter struct {
	mu     sync.Mutex
	sheets report.CollectedData
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{sheets: report.CollectedData{}}
}

func (w *memoryWriter) Save(data report.CollectedData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, rows := range data {
		w.sheets.Replace(name, rows)
	}
	return nil
}

func (w *memoryWriter) Path() string { return "memory.xlsx" }

func (w *memoryWriter) rows(account string) []report.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sheets.Rows(account)
}

type fixture struct {
	cfg       *config.Config
	scheduler *Scheduler
	store     *progress.Store
	backup    *progress.Backup
	writer    *memoryWriter
	factory   *sessionFactory
	monitor   *health.Monitor
}

func newFixture(t *testing.T, fetcher Fetcher, tweak func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Portal.Username = "operator@example.com"
	cfg.Portal.Password = "secret"
	cfg.Output.StateDir = t.TempDir()
	cfg.Run.RequestDelayMS = 0
	cfg.Run.BatchDelayMS = 0
	cfg.Run.RecoveryDelayMS = 0
	if tweak != nil {
		tweak(&cfg)
	}

	factory := &sessionFactory{}
	monitor := health.NewMonitor(cfg.Health, logging.NewNop())
	monitor.SetMemoryProbe(func() (int64, bool) { return 0, false })
	store := progress.NewStore(filepath.Join(cfg.Output.StateDir, "automation_progress.json"), logging.NewNop())
	backup := progress.NewBackup(filepath.Join(cfg.Output.StateDir, "collected_data.json"), logging.NewNop())
	writer := newMemoryWriter()

	sched := NewScheduler(&cfg, factory.factory(), fetcher, monitor, store, backup, writer, logging.NewNop())
	return &fixture{
		cfg:       &cfg,
		scheduler: sched,
		store:     store,
		backup:    backup,
		writer:    writer,
		factory:   factory,
		monitor:   monitor,
	}
}

func namedAccounts(n int) []report.Account {
	accounts := make([]report.Account, 0, n)
	for i := 1; i <= n; i++ {
		accounts = append(accounts, report.Account{
			ID:   fmt.Sprintf("%d", 100+i),
			Name: fmt.Sprintf("Garage %02d", i),
		})
	}
	return accounts
}

func twoDates() []report.Date {
	return []report.Date{
		{Year: 2025, Month: time.April, Day: 1},
		{Year: 2025, Month: time.April, Day: 2},
	}
}

func TestPartitionProperty(t *testing.T) {
	for _, n := range []int{0, 1, 3, 25, 26, 50, 101} {
		for _, b := range []int{1, 2, 25, 100} {
			accounts := namedAccounts(n)
			batches := Partition(accounts, b)

			wantBatches := (n + b - 1) / b
			if len(batches) != wantBatches {
				t.Fatalf("n=%d b=%d: batches = %d, want %d", n, b, len(batches), wantBatches)
			}
			var flat []report.Account
			for _, batch := range batches {
				if len(batch) == 0 || len(batch) > b {
					t.Fatalf("n=%d b=%d: batch size %d out of range", n, b, len(batch))
				}
				flat = append(flat, batch...)
			}
			if len(flat) != n {
				t.Fatalf("n=%d b=%d: concatenation has %d accounts", n, b, len(flat))
			}
			for i, account := range flat {
				if account.Name != accounts[i].Name {
					t.Fatalf("n=%d b=%d: order broken at %d", n, b, i)
				}
			}
		}
	}
}

func TestSchedulerHappyPath(t *testing.T) {
	accounts := namedAccounts(3)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, func(cfg *config.Config) { cfg.Run.BatchSize = 2 })

	summary, err := fx.scheduler.Run(context.Background(), accounts, twoDates())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 2 {
		t.Fatalf("batches = %d, want 2", summary.Batches)
	}
	if summary.Completed != 3 || summary.Failed != 0 {
		t.Fatalf("completed/failed = %d/%d", summary.Completed, summary.Failed)
	}
	for _, account := range accounts {
		if got := len(fx.backup.Rows(account.Name)); got != 2 {
			t.Fatalf("%s backup rows = %d, want 2", account.Name, got)
		}
		if got := len(fx.writer.rows(account.Name)); got != 2 {
			t.Fatalf("%s workbook rows = %d, want 2", account.Name, got)
		}
	}
	// One fresh session per batch.
	if got := fx.factory.count(); got != 2 {
		t.Fatalf("sessions launched = %d, want 2", got)
	}
	// Every batch succeeded, so the run crossed the threshold and cleared.
	if !summary.ProgressCleared {
		t.Fatal("progress not cleared on full completion")
	}
}

func TestSchedulerResumeSkipsCompleted(t *testing.T) {
	accounts := namedAccounts(3)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, nil)

	if err := fx.store.MarkCompleted("Garage 01"); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.MarkCompleted("Garage 02"); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.scheduler.Run(context.Background(), accounts, twoDates()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Only the third account's two dates were fetched.
	if got := fetcher.fetchCalls(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestSchedulerCompletedBatchSkipsSessionLaunch(t *testing.T) {
	accounts := namedAccounts(3)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, func(cfg *config.Config) {
		cfg.Run.BatchSize = 1
	})

	if err := fx.store.MarkCompleted("Garage 01"); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.MarkCompleted("Garage 02"); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.scheduler.Run(context.Background(), accounts, twoDates()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The two fully-completed batches never needed a browser; only the
	// third batch launched one.
	if got := fx.factory.count(); got != 1 {
		t.Fatalf("session launches = %d, want 1", got)
	}
	if got := fetcher.fetchCalls(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestSchedulerAccountFailureIsolated(t *testing.T) {
	accounts := namedAccounts(3)
	dates := twoDates()
	fetcher := newScriptedFetcher(accounts...)
	extractionErr := services.Wrap(services.ErrExtraction, "portal", "parse", "table malformed", nil)
	fetcher.failTimes(accounts[1], dates[1], -1, extractionErr)
	fx := newFixture(t, fetcher, func(cfg *config.Config) {
		// 2 of 3 completed is below the clear threshold.
		cfg.Run.BatchSize = 2
	})

	summary, err := fx.scheduler.Run(context.Background(), accounts, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 1 {
		t.Fatalf("completed/failed = %d/%d", summary.Completed, summary.Failed)
	}
	if got := fx.store.Failed(); len(got) != 1 || got[0] != "Garage 02" {
		t.Fatalf("failed set = %v", got)
	}
	// Partial data from the first date survives in both stores.
	if got := fx.backup.Rows("Garage 02"); len(got) != 1 || got[0].Date != "04/01/2025" {
		t.Fatalf("partial backup rows = %v", got)
	}
	if got := fx.writer.rows("Garage 02"); len(got) != 1 {
		t.Fatalf("partial workbook rows = %d, want 1", len(got))
	}
	if summary.ProgressCleared {
		t.Fatal("progress cleared below threshold")
	}
}

func TestSchedulerSessionDeathRecovery(t *testing.T) {
	accounts := namedAccounts(1)
	dates := twoDates()
	fetcher := newScriptedFetcher(accounts...)
	deadErr := services.Wrap(services.ErrSessionDead, "browser", "fetch", "target closed", nil)
	fetcher.failTimes(accounts[0], dates[0], 1, deadErr)
	fx := newFixture(t, fetcher, nil)

	summary, err := fx.scheduler.Run(context.Background(), accounts, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("failed = %d, want recovery without account failure", summary.Failed)
	}
	// Initial batch session plus one replacement after the death.
	if got := fx.factory.count(); got != 2 {
		t.Fatalf("sessions launched = %d, want 2", got)
	}
}

func TestSchedulerHealthCeilingRestartsMidAccount(t *testing.T) {
	accounts := namedAccounts(1)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, func(cfg *config.Config) {
		cfg.Health.MaxOperations = 1
	})

	summary, err := fx.scheduler.Run(context.Background(), accounts, twoDates())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("completed = %d", summary.Completed)
	}
	// The operation ceiling trips before the second date, forcing one
	// replacement on top of the batch session.
	if got := fx.factory.count(); got < 2 {
		t.Fatalf("sessions launched = %d, want at least 2", got)
	}
}

func TestSchedulerBatchAuthFailureRetriedOnce(t *testing.T) {
	accounts := namedAccounts(2)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, nil)
	fx.factory.authFails = 1

	summary, err := fx.scheduler.Run(context.Background(), accounts, twoDates())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 2 {
		t.Fatalf("completed = %d after batch retry", summary.Completed)
	}
	if got := fx.store.BatchRetryCount(1); got != 0 {
		// Cleared with the rest of progress on full completion.
		t.Logf("batch retry count after clear = %d", got)
	}
}

func TestSchedulerBatchAbandonedAfterRetry(t *testing.T) {
	accounts := namedAccounts(2)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, func(cfg *config.Config) { cfg.Run.BatchSize = 1 })
	// First batch: both the initial attempt and its retry fail login.
	fx.factory.authFails = 2

	summary, err := fx.scheduler.Run(context.Background(), accounts, twoDates())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Batch 1 abandoned, batch 2 processed.
	if summary.Completed != 1 {
		t.Fatalf("completed = %d, want only second batch", summary.Completed)
	}
	if !fx.store.IsCompleted("Garage 02") {
		t.Fatal("second batch account not completed")
	}
	if fx.store.IsCompleted("Garage 01") {
		t.Fatal("unprocessed account marked completed")
	}
}

func TestSchedulerCompletionThreshold(t *testing.T) {
	t.Run("95 percent clears", func(t *testing.T) {
		accounts := namedAccounts(20)
		dates := twoDates()[:1]
		fetcher := newScriptedFetcher(accounts...)
		fetcher.failTimes(accounts[19], dates[0], -1,
			services.Wrap(services.ErrNavigationTimeout, "portal", "wait_table", "timeout", nil))
		fx := newFixture(t, fetcher, nil)

		summary, err := fx.scheduler.Run(context.Background(), accounts, dates)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Completed != 19 {
			t.Fatalf("completed = %d", summary.Completed)
		}
		if !summary.ProgressCleared {
			t.Fatal("19/20 should clear progress")
		}
		if fx.store.Exists() {
			t.Fatal("progress file still on disk")
		}
	})

	t.Run("90 percent retains", func(t *testing.T) {
		accounts := namedAccounts(20)
		dates := twoDates()[:1]
		fetcher := newScriptedFetcher(accounts...)
		timeoutErr := services.Wrap(services.ErrNavigationTimeout, "portal", "wait_table", "timeout", nil)
		fetcher.failTimes(accounts[18], dates[0], -1, timeoutErr)
		fetcher.failTimes(accounts[19], dates[0], -1, timeoutErr)
		fx := newFixture(t, fetcher, nil)

		summary, err := fx.scheduler.Run(context.Background(), accounts, dates)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.ProgressCleared {
			t.Fatal("18/20 should retain progress")
		}
		if !fx.store.Exists() {
			t.Fatal("progress file missing")
		}
	})
}

func TestSchedulerCancellationLeavesResumableState(t *testing.T) {
	accounts := namedAccounts(3)
	fetcher := newScriptedFetcher(accounts...)
	fx := newFixture(t, fetcher, func(cfg *config.Config) { cfg.Run.BatchSize = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	fx.scheduler.SetProgressFunc(func(int) {
		// Cancel after the first account finishes its first operation burst.
		cancel()
	})

	_, err := fx.scheduler.Run(ctx, accounts, twoDates()[:1])
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run after cancel = %v", err)
	}
	// Whatever completed before cancellation is on disk and resumable.
	reloaded := progress.NewStore(filepath.Join(fx.cfg.Output.StateDir, "automation_progress.json"), logging.NewNop())
	for _, name := range reloaded.Completed() {
		if len(fx.backup.Rows(name)) == 0 {
			t.Fatalf("completed account %s has no backup rows", name)
		}
	}
}
