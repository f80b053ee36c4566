package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"

	logx "newsbot/pkg/logx"
)

func sample() Approval {
	return Approval{
		APIKey:      "secret",
		To:          "editor@example.com",
		Title:       "Tech <Weekly>",
		IssueNumber: 4,
		WordCount:   321,
		Preview:     "# Hello",
		ApproveURL:  "https://bot.example.com/api/newsletters/n1/approve?token=t",
		RejectURL:   "https://bot.example.com/api/newsletters/n1/reject?token=t",
	}
}

func TestBodies(t *testing.T) {
	t.Parallel()
	a := sample()
	if got := Subject(a); got != "Approval needed: Tech <Weekly> #4" {
		t.Fatalf("Subject = %q", got)
	}
	text := TextBody(a)
	for _, want := range []string{"321 words", a.ApproveURL, a.RejectURL, "# Hello"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text body missing %q", want)
		}
	}
	h := HTMLBody(a)
	if !strings.Contains(h, "Tech &lt;Weekly&gt;") || strings.Contains(h, "<Weekly>") {
		t.Fatalf("html body not escaped: %s", h)
	}
}

func TestSendApproval(t *testing.T) {
	t.Parallel()
	m := New(Config{Host: "smtp.example.com", Username: "bot@example.com"}, logx.Nop())
	var sent *mail.Msg
	m.send = func(ctx context.Context, c *mail.Client, msg *mail.Msg) error {
		sent = msg
		return nil
	}
	if err := m.SendApproval(context.Background(), sample()); err != nil {
		t.Fatalf("SendApproval: %v", err)
	}
	if sent == nil {
		t.Fatal("message was not handed to the client")
	}
	if to := sent.GetToString(); len(to) != 1 || !strings.Contains(to[0], "editor@example.com") {
		t.Fatalf("recipients = %v", to)
	}

	boom := errors.New("relay down")
	m.send = func(context.Context, *mail.Client, *mail.Msg) error { return boom }
	if err := m.SendApproval(context.Background(), sample()); !errors.Is(err, boom) {
		t.Fatalf("SendApproval error = %v, want wrapped relay error", err)
	}
}

func TestSendApprovalNotConfigured(t *testing.T) {
	t.Parallel()
	m := New(Config{}, logx.Nop())
	if err := m.SendApproval(context.Background(), sample()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
	m = New(Config{Host: "smtp.example.com", From: "bot@example.com"}, logx.Nop())
	a := sample()
	a.To = ""
	if err := m.SendApproval(context.Background(), a); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
