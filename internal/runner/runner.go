package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/notifications"
	"github.com/AndresPaulino/parking-garage-report/internal/progress"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// runBackoffStep is the escalation unit between whole-run attempts: 10s
// after the first failure, 20s after the second, and so on.
const runBackoffStep = 10 * time.Second

// Request selects what a run collects.
type Request struct {
	Year     int
	Month    time.Month
	StartDay int
	EndDay   int
	// Accounts restricts the run to the named accounts; empty means all.
	Accounts []string
	// Resume keeps prior progress and backup data. A retry within Run
	// always resumes regardless of this flag.
	Resume bool
}

// MonthLabel renders the request's month for summaries and notifications.
func (r Request) MonthLabel() string {
	return fmt.Sprintf("%s %d", r.Month, r.Year)
}

// Runner wraps scheduler runs in a bounded retry loop and holds the run lock.
type Runner struct {
	cfg       *config.Config
	factory   browser.Factory
	fetcher   Fetcher
	scheduler *Scheduler
	store     *progress.Store
	backup    *progress.Backup
	notifier  notifications.Service
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRunner assembles the full run pipeline around an existing scheduler.
func NewRunner(
	cfg *config.Config,
	factory browser.Factory,
	fetcher Fetcher,
	scheduler *Scheduler,
	store *progress.Store,
	backup *progress.Backup,
	notifier notifications.Service,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		factory:   factory,
		fetcher:   fetcher,
		scheduler: scheduler,
		store:     store,
		backup:    backup,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "runner"),
		sleep:     sleepCtx,
	}
}

// Run executes the request with full recovery: at most the configured number
// of whole-run attempts, escalating backoff between them, and forced resume
// on every attempt after the first. Exhausting all attempts surfaces a fatal
// error carrying the last failure.
func (r *Runner) Run(ctx context.Context, req Request) (*RunSummary, error) {
	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, errors.New("another run is already in progress")
	}
	defer lock.Unlock()

	dates, err := report.DateRange(req.Year, req.Month, req.StartDay, req.EndDay)
	if err != nil {
		return nil, fmt.Errorf("build date range: %w", err)
	}

	if !req.Resume {
		if err := r.store.Clear(); err != nil {
			return nil, fmt.Errorf("reset progress: %w", err)
		}
		if err := r.backup.Clear(); err != nil {
			return nil, fmt.Errorf("reset backup: %w", err)
		}
	}

	attempts := r.cfg.Run.RunAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := r.attempt(services.WithRunID(ctx, newRunID()), req, dates)
		if err == nil {
			r.notifyCompleted(ctx, req, summary)
			return summary, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Error("run attempt failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
		if attempt < attempts {
			backoff := time.Duration(attempt) * runBackoffStep
			r.logger.Info("backing off before retry",
				logging.Duration("backoff", backoff))
			if serr := r.sleep(ctx, backoff); serr != nil {
				return nil, serr
			}
		}
	}

	fatal := services.Wrap(services.ErrFatal, "runner", "run",
		fmt.Sprintf("run failed after %d attempts", attempts), lastErr)
	r.notifyFailed(ctx, req, fatal)
	return nil, fatal
}

func (r *Runner) attempt(ctx context.Context, req Request, dates []report.Date) (*RunSummary, error) {
	accounts, err := r.discoverAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover accounts: %w", err)
	}
	if len(req.Accounts) > 0 {
		accounts = filterAccounts(accounts, req.Accounts)
		if len(accounts) == 0 {
			return nil, services.Wrap(services.ErrFatal, "runner", "run",
				"none of the requested accounts exist in the portal", nil)
		}
	}
	return r.scheduler.Run(ctx, accounts, dates)
}

// discoverAccounts uses a short-lived session of its own; the scheduler
// acquires fresh batch sessions independently.
func (r *Runner) discoverAccounts(ctx context.Context) ([]report.Account, error) {
	driver, err := r.factory(ctx)
	if err != nil {
		return nil, err
	}
	session := browser.NewSession(driver, r.cfg, r.logger)
	defer session.Close()

	if err := session.Login(ctx); err != nil {
		return nil, err
	}
	if err := r.fetcher.OpenReports(ctx, session); err != nil {
		return nil, err
	}
	return r.fetcher.DiscoverAccounts(ctx, session)
}

func (r *Runner) notifyCompleted(ctx context.Context, req Request, summary *RunSummary) {
	rep := notifications.RunReport{
		Month:          req.MonthLabel(),
		Completed:      summary.Completed,
		Failed:         summary.Failed,
		TotalAccounts:  summary.TotalAccounts,
		FailedAccounts: summary.FailedAccounts,
		Duration:       summary.Duration,
		WorkbookPath:   summary.WorkbookPath,
	}
	if err := r.notifier.NotifyRunCompleted(ctx, rep); err != nil {
		r.logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (r *Runner) notifyFailed(ctx context.Context, req Request, runErr error) {
	rep := notifications.RunReport{
		Month:         req.MonthLabel(),
		Completed:     len(r.store.Completed()),
		Failed:        len(r.store.Failed()),
		TotalAccounts: 0,
	}
	if err := r.notifier.NotifyRunFailed(ctx, rep, runErr); err != nil {
		r.logger.Warn("failure notification failed", logging.Error(err))
	}
}

// newRunID tags every log line of one attempt so interleaved attempts in a
// long log file stay separable.
func newRunID() string {
	return uuid.NewString()
}

func filterAccounts(accounts []report.Account, names []string) []report.Account {
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	filtered := make([]report.Account, 0, len(names))
	for _, account := range accounts {
		if _, ok := wanted[account.Name]; ok {
			filtered = append(filtered, account)
		}
	}
	return filtered
}
