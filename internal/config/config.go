package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Portal contains configuration for the Parkonect reporting portal.
type Portal struct {
	BaseURL           string `toml:"base_url"`
	LoginPath         string `toml:"login_path"`
	ReportPath        string `toml:"report_path"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	Headless          bool   `toml:"headless"`
	LoginTimeout      int    `toml:"login_timeout"`
	NavigationTimeout int    `toml:"navigation_timeout"`
	ReportTimeout     int    `toml:"report_timeout"`
}

// Run contains batch sizing and retry policy for a collection run.
type Run struct {
	BatchSize           int     `toml:"batch_size"`
	FetchAttempts       int     `toml:"fetch_attempts"`
	BatchRetryLimit     int     `toml:"batch_retry_limit"`
	RunAttempts         int     `toml:"run_attempts"`
	RequestDelayMS      int     `toml:"request_delay_ms"`
	BatchDelayMS        int     `toml:"batch_delay_ms"`
	RecoveryDelayMS     int     `toml:"recovery_delay_ms"`
	CompletionThreshold float64 `toml:"completion_threshold"`
}

// Health contains the ceilings that force a fresh browser session.
type Health struct {
	MaxSessionMinutes int `toml:"max_session_minutes"`
	MaxOperations     int `toml:"max_operations"`
	MaxMemoryMiB      int `toml:"max_memory_mib"`
}

// Output contains workbook and state file locations.
type Output struct {
	WorkbookPath string `toml:"workbook_path"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
}

// Notifications contains configuration for completion emails over SMTP.
type Notifications struct {
	To             string `toml:"to"`
	From           string `toml:"from"`
	SMTPHost       string `toml:"smtp_host"`
	SMTPPort       int    `toml:"smtp_port"`
	Password       string `toml:"password"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the report automation.
//
// Configuration sections by subsystem:
//   - Portal: site endpoints, credentials, browser timeouts
//   - Run: batch sizing, retry budgets, pacing delays
//   - Health: session age / operation / memory ceilings
//   - Output: workbook path plus state and log directories
//   - Notifications: optional completion email over SMTP
//   - Logging: log format, level, and retention
type Config struct {
	Portal        Portal        `toml:"portal"`
	Run           Run           `toml:"run"`
	Health        Health        `toml:"health"`
	Output        Output        `toml:"output"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parkingreport/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parkingreport.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories for a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Output.StateDir, c.Output.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Output.WorkbookPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workbook directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProgressPath returns the location of the resumable progress snapshot.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.Output.StateDir, "automation_progress.json")
}

// BackupPath returns the location of the collected-data backup snapshot.
func (c *Config) BackupPath() string {
	return filepath.Join(c.Output.StateDir, "collected_data.json")
}

// LockPath returns the location of the run lock guarding the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Output.StateDir, "parkingreport.lock")
}

// LoginURL returns the portal's login page address.
func (c *Config) LoginURL() string {
	return strings.TrimRight(c.Portal.BaseURL, "/") + c.Portal.LoginPath
}

// ReportURL returns the hourly count report page address.
func (c *Config) ReportURL() string {
	return strings.TrimRight(c.Portal.BaseURL, "/") + c.Portal.ReportPath
}

// NotificationsEnabled reports whether a completion email should be sent.
func (c *Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.Notifications.To) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
