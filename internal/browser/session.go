package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// Login page selectors. The portal presents the identifier and password on
// separate screens, so login is a two-step exchange.
const (
	selectorUsername       = "#txtUserName"
	selectorPassword       = "#txtPassword"
	selectorContinueButton = "input[value='Continue'], button#btnContinue"
	selectorLoginButton    = "input[value='Log in'], button#btnLogin"
	selectorLoginError     = ".login-error, .validation-summary-errors, #lblError"
	selectorAccountSelect  = "#ctl00_cphBody_ddlAccounts"
)

// LoginState tracks progress through the portal's two-screen login exchange.
type LoginState int

const (
	// AwaitingIdentifier means the username screen is (or should be) showing.
	AwaitingIdentifier LoginState = iota
	// AwaitingSecret means the identifier was accepted and the password
	// screen is showing.
	AwaitingSecret
	// Authenticated means the portal accepted the credentials.
	Authenticated
)

func (s LoginState) String() string {
	switch s {
	case AwaitingIdentifier:
		return "awaiting_identifier"
	case AwaitingSecret:
		return "awaiting_secret"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("login_state(%d)", int(s))
	}
}

// Session is one authenticated portal connection: a Driver plus credentials
// and login state. The scheduler replaces the whole Session whenever the
// health monitor or a death signature calls for a restart.
type Session struct {
	driver Driver
	cfg    config.Portal
	base   *config.Config
	state  LoginState
	logger *slog.Logger
}

// NewSession wraps an already-launched driver. The session starts
// unauthenticated; call Login before fetching reports.
func NewSession(driver Driver, cfg *config.Config, logger *slog.Logger) *Session {
	return &Session{
		driver: driver,
		cfg:    cfg.Portal,
		base:   cfg,
		state:  AwaitingIdentifier,
		logger: logging.NewComponentLogger(logger, "session"),
	}
}

// Driver exposes the underlying page driver for report operations.
func (s *Session) Driver() Driver { return s.driver }

// State reports the current login state.
func (s *Session) State() LoginState { return s.state }

// Login walks the two-step exchange: identifier screen, continue, password
// screen, submit, then confirmation that the reporting UI is reachable.
// Credential rejection returns an authentication error; anything else is
// classified by the driver layer.
func (s *Session) Login(ctx context.Context) error {
	loginCtx := ctx
	if s.cfg.LoginTimeout > 0 {
		var cancel context.CancelFunc
		loginCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.LoginTimeout)*time.Second*2)
		defer cancel()
	}

	s.state = AwaitingIdentifier
	if err := s.driver.Navigate(loginCtx, s.base.LoginURL()); err != nil {
		return err
	}
	if err := s.driver.Fill(loginCtx, selectorUsername, s.cfg.Username); err != nil {
		return err
	}
	if err := s.driver.Click(loginCtx, selectorContinueButton); err != nil {
		return err
	}
	if err := s.driver.WaitFor(loginCtx, selectorPassword); err != nil {
		if rejected, msg := s.loginRejected(loginCtx); rejected {
			return services.Wrap(services.ErrAuth, "session", "login", "identifier rejected: "+msg, nil)
		}
		return err
	}
	s.state = AwaitingSecret

	if err := s.driver.Fill(loginCtx, selectorPassword, s.cfg.Password); err != nil {
		return err
	}
	if err := s.driver.Click(loginCtx, selectorLoginButton); err != nil {
		return err
	}

	// The portal lands on an admin page on success and re-renders the login
	// form with an error label on failure.
	if err := s.confirmAuthenticated(loginCtx); err != nil {
		return err
	}
	s.state = Authenticated
	s.logger.Info("portal login complete")
	return nil
}

func (s *Session) confirmAuthenticated(ctx context.Context) error {
	return PollUntil(ctx, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		var currentURL string
		if err := s.driver.Evaluate(ctx, "window.location.href", &currentURL); err != nil {
			return false, err
		}
		if !strings.Contains(strings.ToLower(currentURL), "login.aspx") {
			return true, nil
		}
		if rejected, msg := s.loginRejected(ctx); rejected {
			return false, services.Wrap(services.ErrAuth, "session", "login", "credentials rejected: "+msg, nil)
		}
		return false, nil
	})
}

func (s *Session) loginRejected(ctx context.Context) (bool, string) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? el.textContent.trim() : "";
	})()`, selectorLoginError)
	var msg string
	if err := s.driver.Evaluate(ctx, expr, &msg); err != nil {
		return false, ""
	}
	return msg != "", msg
}

// OpenReportPage navigates to the occupancy report and waits for the account
// selector, which only renders for an authenticated session.
func (s *Session) OpenReportPage(ctx context.Context) error {
	if s.state != Authenticated {
		return services.Wrap(services.ErrSessionDead, "session", "open_report", "session is not authenticated", nil)
	}
	if err := s.driver.Navigate(ctx, s.base.ReportURL()); err != nil {
		return err
	}
	if err := s.driver.WaitFor(ctx, selectorAccountSelect); err != nil {
		// Getting bounced back to the login form means the cookie expired.
		var currentURL string
		if evalErr := s.driver.Evaluate(ctx, "window.location.href", &currentURL); evalErr == nil &&
			strings.Contains(strings.ToLower(currentURL), "login.aspx") {
			return services.Wrap(services.ErrSessionDead, "session", "open_report", "redirected to login", nil)
		}
		return err
	}
	return nil
}

// IsAlive reports whether the browser target still responds.
func (s *Session) IsAlive(ctx context.Context) bool {
	return s.driver.IsAlive(ctx)
}

// Close tears the session's browser down.
func (s *Session) Close() error {
	s.state = AwaitingIdentifier
	return s.driver.Close()
}
