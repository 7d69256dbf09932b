package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionTarget names a directory and glob pattern subject to log cleanup.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes run logs older than retentionDays from each target.
// Failures are logged and skipped; cleanup never blocks a run.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	if retentionDays <= 0 {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	for _, target := range targets {
		matches, err := filepath.Glob(filepath.Join(target.Dir, target.Pattern))
		if err != nil {
			logger.Warn("log cleanup glob failed", Error(err), String("pattern", target.Pattern))
			continue
		}
		excluded := make(map[string]struct{}, len(target.Exclude))
		for _, path := range target.Exclude {
			excluded[path] = struct{}{}
		}
		for _, path := range matches {
			if _, skip := excluded[path]; skip {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				logger.Warn("log cleanup remove failed", Error(err), String("path", path))
			}
		}
	}
}
