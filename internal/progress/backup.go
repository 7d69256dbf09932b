package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
)

// Backup persists every collected row keyed by account. It is the second
// half of the dual-persistence step: the workbook is the deliverable, the
// backup file is what a resumed run reloads so finished accounts are not
// re-fetched.
type Backup struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data report.CollectedData
}

// NewBackup creates a backup store backed by the given file, loading any
// existing contents. An empty path disables persistence.
func NewBackup(path string, logger *slog.Logger) *Backup {
	b := &Backup{
		path:   path,
		logger: logging.NewComponentLogger(logger, "backup"),
		data:   report.CollectedData{},
	}
	if path == "" {
		return b
	}
	if err := b.load(); err != nil {
		b.logger.Warn("failed to load backup file",
			logging.String(logging.FieldEventType, "backup_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "collected rows will be rebuilt from the portal"))
	}
	return b
}

// Replace stores the account's rows, overwriting any prior sequence, and
// persists the snapshot. Partial sequences from failed accounts are stored
// too; a later success replaces them wholesale.
func (b *Backup) Replace(account string, rows []report.Row) error {
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data.Replace(account, rows)
	return b.save()
}

// Rows returns the stored rows for an account, or nil.
func (b *Backup) Rows(account string) []report.Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Rows(account)
}

// Data returns a deep copy of everything collected so far.
func (b *Backup) Data() report.CollectedData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Clone()
}

// Clear removes the backup file and empties the in-memory data.
func (b *Backup) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = report.CollectedData{}
	if b.path == "" {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove backup file: %w", err)
	}
	return nil
}

func (b *Backup) load() error {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read backup file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var data report.CollectedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse backup file: %w", err)
	}
	b.data = data
	b.logger.Debug("loaded backup file", logging.Int("accounts", len(data)))
	return nil
}

// save writes the data atomically. Callers hold the write lock.
func (b *Backup) save() error {
	if b.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	return writeAtomic(b.path, raw)
}
