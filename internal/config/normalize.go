package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePortal(); err != nil {
		return err
	}
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	c.normalizeRun()
	c.normalizeHealth()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePortal() error {
	c.Portal.BaseURL = strings.TrimSpace(c.Portal.BaseURL)
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = defaultBaseURL
	}
	c.Portal.LoginPath = strings.TrimSpace(c.Portal.LoginPath)
	if c.Portal.LoginPath == "" {
		c.Portal.LoginPath = defaultLoginPath
	}
	c.Portal.ReportPath = strings.TrimSpace(c.Portal.ReportPath)
	if c.Portal.ReportPath == "" {
		c.Portal.ReportPath = defaultReportPath
	}
	if c.Portal.Username == "" {
		if value, ok := os.LookupEnv("PARKONECT_USERNAME"); ok {
			c.Portal.Username = value
		}
	}
	if c.Portal.Password == "" {
		if value, ok := os.LookupEnv("PARKONECT_PASSWORD"); ok {
			c.Portal.Password = value
		}
	}
	if c.Portal.LoginTimeout <= 0 {
		c.Portal.LoginTimeout = defaultLoginTimeout
	}
	if c.Portal.NavigationTimeout <= 0 {
		c.Portal.NavigationTimeout = defaultNavigationTimeout
	}
	if c.Portal.ReportTimeout <= 0 {
		c.Portal.ReportTimeout = defaultReportTimeout
	}
	return nil
}

func (c *Config) normalizeOutput() error {
	var err error
	if strings.TrimSpace(c.Output.StateDir) == "" {
		c.Output.StateDir = defaultStateDir
	}
	if c.Output.StateDir, err = expandPath(c.Output.StateDir); err != nil {
		return fmt.Errorf("output.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Output.LogDir) == "" {
		c.Output.LogDir = defaultLogDir
	}
	if c.Output.LogDir, err = expandPath(c.Output.LogDir); err != nil {
		return fmt.Errorf("output.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Output.WorkbookPath) == "" {
		c.Output.WorkbookPath = defaultWorkbookPath
	}
	if c.Output.WorkbookPath, err = expandPath(c.Output.WorkbookPath); err != nil {
		return fmt.Errorf("output.workbook_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRun() {
	if c.Run.BatchSize <= 0 {
		c.Run.BatchSize = defaultBatchSize
	}
	if c.Run.FetchAttempts <= 0 {
		c.Run.FetchAttempts = defaultFetchAttempts
	}
	if c.Run.BatchRetryLimit < 0 {
		c.Run.BatchRetryLimit = defaultBatchRetryLimit
	}
	if c.Run.RunAttempts <= 0 {
		c.Run.RunAttempts = defaultRunAttempts
	}
	if c.Run.RequestDelayMS < 0 {
		c.Run.RequestDelayMS = defaultRequestDelayMS
	}
	if c.Run.BatchDelayMS < 0 {
		c.Run.BatchDelayMS = defaultBatchDelayMS
	}
	if c.Run.RecoveryDelayMS < 0 {
		c.Run.RecoveryDelayMS = defaultRecoveryDelayMS
	}
	if c.Run.CompletionThreshold <= 0 {
		c.Run.CompletionThreshold = defaultCompletionThreshold
	}
}

func (c *Config) normalizeHealth() {
	if c.Health.MaxSessionMinutes <= 0 {
		c.Health.MaxSessionMinutes = defaultMaxSessionMinutes
	}
	if c.Health.MaxOperations <= 0 {
		c.Health.MaxOperations = defaultMaxOperations
	}
	if c.Health.MaxMemoryMiB < 0 {
		c.Health.MaxMemoryMiB = defaultMaxMemoryMiB
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.To = strings.TrimSpace(c.Notifications.To)
	c.Notifications.From = strings.TrimSpace(c.Notifications.From)
	c.Notifications.SMTPHost = strings.TrimSpace(c.Notifications.SMTPHost)
	if c.Notifications.SMTPHost == "" {
		c.Notifications.SMTPHost = defaultSMTPHost
	}
	if c.Notifications.SMTPPort <= 0 {
		c.Notifications.SMTPPort = defaultSMTPPort
	}
	if c.Notifications.Password == "" {
		if value, ok := os.LookupEnv("PARKINGREPORT_SMTP_PASSWORD"); ok {
			c.Notifications.Password = value
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultRetentionDays
	}
}
