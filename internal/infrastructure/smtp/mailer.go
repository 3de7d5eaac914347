package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/whisper-api/internal/config"
	"github.com/whisper-api/internal/domain"
	"gopkg.in/gomail.v2"
)

// Notifier dispatches the two outbound emails this system sends. Dispatch is
// bounded by the configured timeout; a timeout is indistinguishable from a
// send failure to callers.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, username, code string) error
	SendPasswordResetLink(ctx context.Context, email, link string) error
}

type mailer struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
}

func NewNotifier(cfg *config.Config) Notifier {
	return &mailer{
		dialer:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:    cfg.SMTPFrom,
		timeout: cfg.MailerTimeout,
	}
}

func (m *mailer) SendVerificationCode(ctx context.Context, email, username, code string) error {
	body := fmt.Sprintf(
		`<div style="font-family:Roboto,Verdana,sans-serif"><h2>Hello %s,</h2>`+
			`<p>Thank you for registering. Please use the following verification code to complete your registration:</p>`+
			`<p style="font-size:20px;font-weight:bold">%s</p>`+
			`<p>If you did not request this code, please ignore this email.</p></div>`,
		username, code)
	return m.send(ctx, email, "Verification Code", body)
}

func (m *mailer) SendPasswordResetLink(ctx context.Context, email, link string) error {
	body := fmt.Sprintf(
		`<div style="font-family:Roboto,Verdana,sans-serif"><h2>Password reset requested</h2>`+
			`<p>Click the link below to reset your password. The link expires in 10 minutes.</p>`+
			`<p><a href="%s">Reset your password</a></p>`+
			`<p>If you did not request a password reset, you can safely ignore this email.</p></div>`,
		link)
	return m.send(ctx, email, "Reset your password", body)
}

func (m *mailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// gomail's dialer is synchronous with no context support, so the send runs
	// in its own goroutine and the deadline is enforced here.
	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w: %w", err, domain.ErrUnavailable)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w: %w", ctx.Err(), domain.ErrUnavailable)
	}
}
