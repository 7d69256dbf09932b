package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/logging"
)

// Snapshot is the on-disk shape of the progress file. BatchRetries maps
// batch index to the number of whole-batch retries consumed.
type Snapshot struct {
	CompletedAccounts []string    `json:"completed_accounts"`
	FailedAccounts    []string    `json:"failed_accounts"`
	BatchRetries      map[int]int `json:"batch_retry_count"`
	LastProcessed     time.Time   `json:"last_processed"`
	CurrentBatch      int         `json:"current_batch"`
	TotalBatches      int         `json:"total_batches"`
	BatchCompletedAt  time.Time   `json:"batch_completed_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Store provides thread-safe access to the progress snapshot. If path is
// empty the store is non-functional and all operations become no-ops, which
// keeps dry runs from touching disk.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	completed map[string]struct{}
	failed    map[string]struct{}
	snapshot  Snapshot
}

// NewStore creates a store backed by the given file. An existing snapshot is
// loaded; a corrupt one is logged and discarded so a damaged file never
// blocks a run.
func NewStore(path string, logger *slog.Logger) *Store {
	s := &Store{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "progress"),
		now:       time.Now,
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
	}
	if path == "" {
		return s
	}
	if err := s.load(); err != nil {
		s.logger.Warn("failed to load progress file",
			logging.String(logging.FieldEventType, "progress_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run will start from scratch"))
	}
	return s
}

// Exists reports whether a progress file is present on disk.
func (s *Store) Exists() bool {
	if s.path == "" {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// MarkCompleted records a finished account. A previously failed account that
// later succeeds moves out of the failed set; the two sets never overlap.
func (s *Store) MarkCompleted(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[account] = struct{}{}
	delete(s.failed, account)
	s.snapshot.LastProcessed = s.now()
	return s.save()
}

// MarkFailed records a failed account unless it already completed.
func (s *Store) MarkFailed(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.completed[account]; !done {
		s.failed[account] = struct{}{}
	}
	s.snapshot.LastProcessed = s.now()
	return s.save()
}

// IsCompleted reports whether the account finished in this run or a prior one.
func (s *Store) IsCompleted(account string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[strings.TrimSpace(account)]
	return ok
}

// SetBatchCursor records the batch position for resume diagnostics.
func (s *Store) SetBatchCursor(current, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.CurrentBatch = current
	s.snapshot.TotalBatches = total
	return s.save()
}

// CheckpointBatch stamps the completion time of the current batch.
func (s *Store) CheckpointBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.BatchCompletedAt = s.now()
	return s.save()
}

// BatchRetryCount returns how many whole-batch retries the given batch has
// consumed.
func (s *Store) BatchRetryCount(batch int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.BatchRetries[batch]
}

// IncrementBatchRetry consumes one retry for the given batch and persists the
// new count.
func (s *Store) IncrementBatchRetry(batch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.BatchRetries == nil {
		s.snapshot.BatchRetries = make(map[int]int)
	}
	s.snapshot.BatchRetries[batch]++
	return s.save()
}

// Completed returns the completed accounts sorted by name.
func (s *Store) Completed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.completed)
}

// Failed returns the failed accounts sorted by name.
func (s *Store) Failed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.failed)
}

// Current returns a copy of the full snapshot for display.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	snap.CompletedAccounts = sortedKeys(s.completed)
	snap.FailedAccounts = sortedKeys(s.failed)
	return snap
}

// CompletionRatio returns completed/total for the given account universe.
// Accounts completed that are no longer in the universe still count toward
// the numerator so a shrinking roster cannot stall completion.
func (s *Store) CompletionRatio(total int) float64 {
	if total <= 0 {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ratio := float64(len(s.completed)) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// Clear removes the progress file and resets in-memory state. Called once a
// run crosses the completion threshold so the next invocation starts fresh.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = make(map[string]struct{})
	s.failed = make(map[string]struct{})
	s.snapshot = Snapshot{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove progress file: %w", err)
	}
	s.logger.Info("progress file cleared")
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read progress file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse progress file: %w", err)
	}
	s.snapshot = snap
	s.completed = make(map[string]struct{}, len(snap.CompletedAccounts))
	for _, name := range snap.CompletedAccounts {
		if name = strings.TrimSpace(name); name != "" {
			s.completed[name] = struct{}{}
		}
	}
	s.failed = make(map[string]struct{}, len(snap.FailedAccounts))
	for _, name := range snap.FailedAccounts {
		if name = strings.TrimSpace(name); name == "" {
			continue
		} else if _, done := s.completed[name]; !done {
			s.failed[name] = struct{}{}
		}
	}
	s.logger.Debug("loaded progress file",
		logging.Int("completed", len(s.completed)),
		logging.Int("failed", len(s.failed)),
		logging.String("path", s.path))
	return nil
}

// save writes the snapshot atomically. Callers hold the write lock.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	s.snapshot.CompletedAccounts = sortedKeys(s.completed)
	s.snapshot.FailedAccounts = sortedKeys(s.failed)
	s.snapshot.UpdatedAt = s.now()

	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return writeAtomic(s.path, data)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// writeAtomic writes data to path via a temp file and rename so readers never
// observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
