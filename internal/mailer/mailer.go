// Package mailer sends the approval email for a freshly generated
// newsletter over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	logx "newsbot/pkg/logx"
)

var ErrNotConfigured = errors.New("smtp is not configured")

// Config is the SMTP relay. The password is the emailApiKey from settings.
type Config struct {
	Host     string
	Port     int
	Username string
	From     string
	TLS      string // "starttls" (default), "ssl", "none"
	Timeout  time.Duration
}

// Approval is one approval request.
type Approval struct {
	APIKey      string
	To          string
	Title       string
	IssueNumber int
	WordCount   int
	Preview     string
	ApproveURL  string
	RejectURL   string
}

// Mailer delivers approval emails.
type Mailer struct {
	cfg Config
	log logx.Logger

	// send is swapped in tests.
	send func(ctx context.Context, c *mail.Client, m *mail.Msg) error
}

func New(cfg Config, log logx.Logger) *Mailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Mailer{
		cfg: cfg,
		log: log,
		send: func(ctx context.Context, c *mail.Client, m *mail.Msg) error {
			return c.DialAndSendWithContext(ctx, m)
		},
	}
}

// SendApproval renders and sends the approval email.
func (m *Mailer) SendApproval(ctx context.Context, a Approval) error {
	if strings.TrimSpace(m.cfg.Host) == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(a.To) == "" {
		return errors.New("approval recipient is empty")
	}
	msg, err := m.buildMessage(a)
	if err != nil {
		return err
	}
	client, err := m.newClient(a.APIKey)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := m.send(ctx, client, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.log.Info("approval email sent", logx.String("to", a.To), logx.Int("issue", a.IssueNumber))
	return nil
}

func (m *Mailer) buildMessage(a Approval) (*mail.Msg, error) {
	msg := mail.NewMsg()
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(a.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(Subject(a))
	msg.SetBodyString(mail.TypeTextPlain, TextBody(a))
	msg.AddAlternativeString(mail.TypeTextHTML, HTMLBody(a))
	return msg, nil
}

func (m *Mailer) newClient(password string) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(password),
		)
	}
	switch strings.ToLower(m.cfg.TLS) {
	case "ssl":
		opts = append(opts, mail.WithSSLPort(false))
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

func Subject(a Approval) string {
	return fmt.Sprintf("Approval needed: %s #%d", a.Title, a.IssueNumber)
}

func TextBody(a Approval) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d of %s is ready for review (%d words).\n\n", a.IssueNumber, a.Title, a.WordCount)
	if p := strings.TrimSpace(a.Preview); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Approve: %s\nReject:  %s\n", a.ApproveURL, a.RejectURL)
	return b.String()
}

func HTMLBody(a Approval) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Issue #%d of <strong>%s</strong> is ready for review (%d words).</p>",
		a.IssueNumber, html.EscapeString(a.Title), a.WordCount)
	if p := strings.TrimSpace(a.Preview); p != "" {
		fmt.Fprintf(&b, "<pre style=\"white-space:pre-wrap\">%s</pre>", html.EscapeString(p))
	}
	fmt.Fprintf(&b, "<p><a href=\"%s\">Approve</a> &middot; <a href=\"%s\">Reject</a></p>",
		html.EscapeString(a.ApproveURL), html.EscapeString(a.RejectURL))
	return b.String()
}
