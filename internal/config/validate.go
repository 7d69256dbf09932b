package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePortal(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePortal() error {
	parsed, err := url.Parse(c.Portal.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("portal.base_url %q is not a valid absolute URL", c.Portal.BaseURL)
	}
	if !strings.HasPrefix(c.Portal.LoginPath, "/") {
		return errors.New("portal.login_path must start with /")
	}
	if !strings.HasPrefix(c.Portal.ReportPath, "/") {
		return errors.New("portal.report_path must start with /")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.CompletionThreshold > 1 {
		return errors.New("run.completion_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if !c.NotificationsEnabled() {
		return nil
	}
	if c.Notifications.From == "" {
		return errors.New("notifications.from must be set when notifications.to is set")
	}
	if c.Notifications.Password == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/parkingreport/config.toml"
		}
		return fmt.Errorf("notifications.password is required when notifications.to is set. Set PARKINGREPORT_SMTP_PASSWORD env var or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	return nil
}
