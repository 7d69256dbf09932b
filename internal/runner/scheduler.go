package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/browser"
	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/health"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/progress"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// Fetcher is the portal surface the scheduler drives.
type Fetcher interface {
	OpenReports(ctx context.Context, session *browser.Session) error
	DiscoverAccounts(ctx context.Context, session *browser.Session) ([]report.Account, error)
	Fetch(ctx context.Context, session *browser.Session, account report.Account, date report.Date) ([]report.Row, error)
}

// WorkbookWriter persists collected rows to the spreadsheet deliverable.
type WorkbookWriter interface {
	Save(data report.CollectedData) error
	Path() string
}

// RunSummary is the outcome of one scheduler run.
type RunSummary struct {
	TotalAccounts   int
	Completed       int
	Failed          int
	FailedAccounts  []string
	Batches         int
	Duration        time.Duration
	ProgressCleared bool
	WorkbookPath    string
}

// Scheduler walks accounts in batches against the one live session it owns.
type Scheduler struct {
	cfg     *config.Config
	factory browser.Factory
	fetcher Fetcher
	monitor *health.Monitor
	store   *progress.Store
	backup  *progress.Backup
	writer  WorkbookWriter
	logger  *slog.Logger

	session    *browser.Session
	onProgress func(operations int)
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewScheduler wires a scheduler from its collaborators.
func NewScheduler(
	cfg *config.Config,
	factory browser.Factory,
	fetcher Fetcher,
	monitor *health.Monitor,
	store *progress.Store,
	backup *progress.Backup,
	writer WorkbookWriter,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		factory: factory,
		fetcher: fetcher,
		monitor: monitor,
		store:   store,
		backup:  backup,
		writer:  writer,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		sleep:   sleepCtx,
	}
}

// SetProgressFunc registers a hook invoked with the number of (account, date)
// operations newly accounted for, used by the CLI progress bar.
func (s *Scheduler) SetProgressFunc(fn func(operations int)) {
	s.onProgress = fn
}

// Partition splits accounts into consecutive batches of size, preserving
// order. The final batch may be short.
func Partition(accounts []report.Account, size int) [][]report.Account {
	if size <= 0 {
		size = 1
	}
	batches := make([][]report.Account, 0, (len(accounts)+size-1)/size)
	for start := 0; start < len(accounts); start += size {
		end := start + size
		if end > len(accounts) {
			end = len(accounts)
		}
		batches = append(batches, accounts[start:end])
	}
	return batches
}

// Run processes every account for every date. Batch failures are retried once
// and then abandoned; only cancellation and persistence defects abort the run.
func (s *Scheduler) Run(ctx context.Context, accounts []report.Account, dates []report.Date) (*RunSummary, error) {
	started := time.Now()
	defer s.closeSession()

	if len(accounts) == 0 {
		return nil, services.Wrap(services.ErrFatal, "scheduler", "run", "no accounts to process", nil)
	}
	if len(dates) == 0 {
		return nil, services.Wrap(services.ErrFatal, "scheduler", "run", "no dates to process", nil)
	}

	batches := Partition(accounts, s.cfg.Run.BatchSize)
	s.logger.Info("run starting",
		logging.Int("accounts", len(accounts)),
		logging.Int("batches", len(batches)),
		logging.Int("dates", len(dates)))

	for i, batch := range batches {
		num := i + 1
		batchCtx := services.WithBatch(ctx, num)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.store.SetBatchCursor(num, len(batches)); err != nil {
			return nil, services.Wrap(services.ErrFatal, "scheduler", "persist", "saving batch cursor", err)
		}

		err := s.runBatch(batchCtx, batch, dates)
		if err != nil && ctx.Err() == nil && !errors.Is(err, services.ErrFatal) &&
			s.store.BatchRetryCount(num) < s.cfg.Run.BatchRetryLimit {
			s.logger.Warn("batch failed, retrying",
				logging.Int(logging.FieldBatch, num),
				logging.Error(err))
			if ierr := s.store.IncrementBatchRetry(num); ierr != nil {
				return nil, services.Wrap(services.ErrFatal, "scheduler", "persist", "saving batch retry count", ierr)
			}
			err = s.runBatch(batchCtx, batch, dates)
		}
		switch {
		case err == nil:
			if cerr := s.store.CheckpointBatch(); cerr != nil {
				return nil, services.Wrap(services.ErrFatal, "scheduler", "persist", "saving batch checkpoint", cerr)
			}
			s.logger.Info("batch complete", logging.Int(logging.FieldBatch, num))
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, services.ErrFatal):
			return nil, err
		default:
			// Progress was persisted account by account; the next batch
			// still deserves its chance.
			s.logger.Error("batch abandoned",
				logging.Int(logging.FieldBatch, num),
				logging.Error(err))
		}

		if num < len(batches) {
			if err := s.sleep(ctx, msDuration(s.cfg.Run.BatchDelayMS)); err != nil {
				return nil, err
			}
		}
	}

	summary := &RunSummary{
		TotalAccounts:  len(accounts),
		Completed:      len(s.store.Completed()),
		Failed:         len(s.store.Failed()),
		FailedAccounts: s.store.Failed(),
		Batches:        len(batches),
		Duration:       time.Since(started),
		WorkbookPath:   s.writer.Path(),
	}

	if s.store.CompletionRatio(len(accounts)) >= s.cfg.Run.CompletionThreshold {
		if err := s.store.Clear(); err != nil {
			return nil, services.Wrap(services.ErrFatal, "scheduler", "persist", "clearing progress", err)
		}
		summary.ProgressCleared = true
		s.logger.Info("run complete, progress cleared",
			logging.Int("completed", summary.Completed),
			logging.Int("failed", summary.Failed))
	} else {
		s.logger.Info("run complete, progress retained for resume",
			logging.Int("completed", summary.Completed),
			logging.Int("failed", summary.Failed))
	}
	return summary, nil
}

// runBatch acquires a fresh session and processes every not-yet-completed
// account in the batch. A returned error is a batch-level failure.
func (s *Scheduler) runBatch(ctx context.Context, batch []report.Account, dates []report.Date) error {
	pending := 0
	for _, account := range batch {
		if !s.store.IsCompleted(account.Name) {
			pending++
		}
	}
	if pending == 0 {
		// Nothing left in this batch; a resumed run should not pay for a
		// browser launch just to skip every account.
		s.logger.Info("batch already complete",
			logging.Int("accounts", len(batch)))
		s.advance(len(batch) * len(dates))
		return nil
	}
	if err := s.restartSession(ctx); err != nil {
		return err
	}
	for _, account := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.store.IsCompleted(account.Name) {
			s.logger.Info("skipping completed account",
				logging.String(logging.FieldAccount, account.Name))
			s.advance(len(dates))
			continue
		}
		if err := s.processAccount(services.WithAccount(ctx, account.Name), account, dates); err != nil {
			return err
		}
	}
	return nil
}

// processAccount fetches every date for one account and performs the dual
// persistence step. Fetch failures fail the account, never the batch; only
// session acquisition and persistence failures propagate.
func (s *Scheduler) processAccount(ctx context.Context, account report.Account, dates []report.Date) error {
	s.logger.Info("processing account", logging.String(logging.FieldAccount, account.Name))
	rows := make([]report.Row, 0, len(dates))
	failed := false

	for i, date := range dates {
		if restart, reason := s.monitor.ShouldRestart(); restart {
			s.logger.Info("session restart required",
				logging.String("reason", string(reason)))
			if err := s.restartSession(ctx); err != nil {
				return err
			}
		}

		dayRows, err := s.fetchDay(ctx, account, date)
		s.advance(1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isBatchAbort(err) {
				return err
			}
			s.logger.Warn("account failed, keeping partial data",
				logging.String(logging.FieldDate, date.String()),
				logging.Int("collected_days", i),
				logging.Error(err))
			failed = true
			s.advance(len(dates) - i - 1)
			break
		}
		rows = append(rows, dayRows...)

		if err := s.sleep(ctx, msDuration(s.cfg.Run.RequestDelayMS)); err != nil {
			return err
		}
	}

	if err := s.backup.Replace(account.Name, rows); err != nil {
		return services.Wrap(services.ErrFatal, "scheduler", "persist", "saving data backup", err)
	}
	if len(rows) > 0 {
		if err := s.writer.Save(report.CollectedData{account.Name: rows}); err != nil {
			return services.Wrap(services.ErrFatal, "scheduler", "persist", "saving workbook", err)
		}
	}

	var markErr error
	if failed {
		markErr = s.store.MarkFailed(account.Name)
	} else {
		markErr = s.store.MarkCompleted(account.Name)
	}
	if markErr != nil {
		return services.Wrap(services.ErrFatal, "scheduler", "persist", "saving progress", markErr)
	}
	return nil
}

// fetchDay runs the per-date retry loop. Session-death failures recover the
// session between attempts; extraction failures get a single retry; timeouts
// retry in place.
func (s *Scheduler) fetchDay(ctx context.Context, account report.Account, date report.Date) ([]report.Row, error) {
	attempts := s.cfg.Run.FetchAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		s.monitor.RecordOperation()
		rows, err := s.fetcher.Fetch(ctx, s.session, account, date)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("fetch attempt failed",
			logging.String(logging.FieldDate, date.String()),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
		if attempt == attempts {
			break
		}
		if errors.Is(err, services.ErrExtraction) && attempt >= 2 {
			break
		}
		if services.RequiresSessionRestart(err) || !s.session.IsAlive(ctx) {
			if rerr := s.restartSession(ctx); rerr != nil {
				return nil, rerr
			}
		}
		if serr := s.sleep(ctx, msDuration(s.cfg.Run.RecoveryDelayMS)); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

// restartSession replaces the live session wholesale: close the old one,
// launch and log in a new one, land on the report page, reset the health
// monitor.
func (s *Scheduler) restartSession(ctx context.Context) error {
	s.closeSession()
	driver, err := s.factory(ctx)
	if err != nil {
		return err
	}
	session := browser.NewSession(driver, s.cfg, s.logger)
	if err := session.Login(ctx); err != nil {
		session.Close()
		return err
	}
	if err := s.fetcher.OpenReports(ctx, session); err != nil {
		session.Close()
		return err
	}
	s.session = session
	s.monitor.Reset()
	return nil
}

func (s *Scheduler) closeSession() {
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.logger.Warn("session close failed", logging.Error(err))
		}
		s.session = nil
	}
}

func (s *Scheduler) advance(operations int) {
	if s.onProgress != nil && operations > 0 {
		s.onProgress(operations)
	}
}

// isBatchAbort reports whether an error must fail the whole batch rather
// than the current account: credential rejection means no session can be
// acquired, and fatal errors carry persistence defects upward.
func isBatchAbort(err error) bool {
	return errors.Is(err, services.ErrAuth) || errors.Is(err, services.ErrFatal)
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
