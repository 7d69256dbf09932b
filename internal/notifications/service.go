package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
)

// RunReport carries the figures included in completion and failure emails.
type RunReport struct {
	Month          string
	Completed      int
	Failed         int
	TotalAccounts  int
	FailedAccounts []string
	Duration       time.Duration
	WorkbookPath   string
}

// Service defines the notification surface exposed to the runner and CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, rep RunReport) error
	NotifyRunFailed(ctx context.Context, rep RunReport, runErr error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an email notification service when a recipient is
// configured, otherwise a noop implementation.
func NewService(cfg *config.Config) Service {
	if !cfg.NotificationsEnabled() {
		return noopService{}
	}
	n := cfg.Notifications
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &mailService{
		from:    n.From,
		to:      n.To,
		host:    n.SMTPHost,
		port:    n.SMTPPort,
		pass:    n.Password,
		timeout: timeout,
		send:    dialAndSend,
	}
}

type mailService struct {
	from    string
	to      string
	host    string
	port    int
	pass    string
	timeout time.Duration

	// send is swapped out in tests so no SMTP connection is made.
	send func(ctx context.Context, s *mailService, msg *mail.Msg) error
}

func dialAndSend(ctx context.Context, s *mailService, msg *mail.Msg) error {
	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.from),
		mail.WithPassword(s.pass),
		mail.WithTimeout(s.timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *mailService) compose(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(s.to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *mailService) NotifyRunCompleted(ctx context.Context, rep RunReport) error {
	subject := fmt.Sprintf("Parking reports complete - %s", rep.Month)
	var b strings.Builder
	fmt.Fprintf(&b, "Report collection finished for %s.\n\n", rep.Month)
	fmt.Fprintf(&b, "Accounts completed: %d of %d\n", rep.Completed, rep.TotalAccounts)
	fmt.Fprintf(&b, "Accounts failed: %d\n", rep.Failed)
	fmt.Fprintf(&b, "Duration: %s\n", rep.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Workbook: %s\n", rep.WorkbookPath)
	if len(rep.FailedAccounts) > 0 {
		b.WriteString("\nFailed accounts:\n")
		for _, name := range rep.FailedAccounts {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	msg, err := s.compose(subject, b.String())
	if err != nil {
		return err
	}
	return s.send(ctx, s, msg)
}

func (s *mailService) NotifyRunFailed(ctx context.Context, rep RunReport, runErr error) error {
	subject := fmt.Sprintf("Parking reports FAILED - %s", rep.Month)
	var b strings.Builder
	fmt.Fprintf(&b, "Report collection for %s stopped after exhausting every retry.\n\n", rep.Month)
	fmt.Fprintf(&b, "Error: %v\n\n", runErr)
	fmt.Fprintf(&b, "Accounts completed before failure: %d of %d\n", rep.Completed, rep.TotalAccounts)
	b.WriteString("Progress has been saved; rerunning will resume where this run stopped.\n")
	msg, err := s.compose(subject, b.String())
	if err != nil {
		return err
	}
	return s.send(ctx, s, msg)
}

func (s *mailService) TestNotification(ctx context.Context) error {
	msg, err := s.compose("Parking report notifications test",
		"Notifications are configured correctly.\n")
	if err != nil {
		return err
	}
	return s.send(ctx, s, msg)
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunReport) error { return nil }

func (noopService) NotifyRunFailed(context.Context, RunReport, error) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
