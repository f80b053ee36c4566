package newsletter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"newsbot/internal/generate"
	"newsbot/internal/mailer"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	logx "newsbot/pkg/logx"
)

type fakeGenerator struct {
	text string
	err  error
	last generate.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req generate.Request) (string, error) {
	g.last = req
	return g.text, g.err
}

func (g *fakeGenerator) SocialPost(_ context.Context, req generate.SocialRequest) (string, error) {
	return "post for " + req.Platform, g.err
}

type fakeGenerators struct{ g *fakeGenerator }

func (f fakeGenerators) For(provider, apiKey string) (generate.Generator, error) {
	if apiKey == "" {
		return nil, generate.ErrNoAPIKey
	}
	return f.g, nil
}

type fakeMail struct {
	sent []mailer.Approval
	err  error
}

func (m *fakeMail) SendApproval(_ context.Context, a mailer.Approval) error {
	m.sent = append(m.sent, a)
	return m.err
}

type fakePublisher struct {
	posts []publish.Post
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, post publish.Post) (publish.Published, error) {
	p.posts = append(p.posts, post)
	if p.err != nil {
		return publish.Published{}, p.err
	}
	return publish.Published{ExternalID: "post_1", WebURL: "https://example.com/p/1", Status: "confirmed"}, nil
}

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store storage.Store
	gen   *fakeGenerator
	mail  *fakeMail
	pub   *fakePublisher
	asm   *Assembler
}

func newFixture(t *testing.T, selected int) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemory(),
		gen:   &fakeGenerator{text: "Hello readers, here is the week in review."},
		mail:  &fakeMail{},
		pub:   &fakePublisher{},
	}
	ctx := context.Background()
	for i := 0; i < selected; i++ {
		if _, err := f.store.CreateArticle(ctx, storage.Article{Title: "a", Content: "c", Selected: true}); err != nil {
			t.Fatalf("CreateArticle: %v", err)
		}
	}
	f.asm = New(Config{PublicBaseURL: "https://news.example.com/"}, Deps{
		Store:      f.store,
		Generators: fakeGenerators{g: f.gen},
		Mail:       f.mail,
		Publish:    f.pub,
		Now:        func() time.Time { return fixedNow },
	}, logx.Nop())
	return f
}

func settingsWithKey() storage.Settings {
	s := storage.DefaultSettings()
	s.GenerationAPIKey = "sk-test"
	return s
}

func TestAssembleNothingToDo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		selected int
		settings storage.Settings
	}{
		{name: "no selected articles", selected: 0, settings: settingsWithKey()},
		{name: "no api key", selected: 2, settings: storage.DefaultSettings()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.selected)
			_, err := f.asm.Assemble(context.Background(), tt.settings, "daily")
			if !errors.Is(err, ErrNothingToAssemble) {
				t.Fatalf("err = %v, want ErrNothingToAssemble", err)
			}
			list, _ := f.store.ListNewsletters(context.Background(), 0)
			if len(list) != 0 {
				t.Fatalf("newsletters = %d, want 0", len(list))
			}
		})
	}
}

func TestAssembleAutoApproved(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	s := settingsWithKey()
	s.ApprovalRequired = false
	s.IssueStartNumber = 40

	res, err := f.asm.Assemble(context.Background(), s, "weekly")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	n := res.Newsletter
	if n.Status != storage.StatusApproved || n.ApprovedAt == nil {
		t.Fatalf("status = %s approvedAt = %v", n.Status, n.ApprovedAt)
	}
	if n.IssueNumber != 40 {
		t.Fatalf("issue = %d, want 40", n.IssueNumber)
	}
	if n.WordCount != 8 {
		t.Fatalf("wordCount = %d, want 8", n.WordCount)
	}
	if len(f.gen.last.Articles) != 3 || f.gen.last.MaxTokens != storage.DefaultMaxTokens {
		t.Fatalf("request = %+v", f.gen.last)
	}
	if len(f.mail.sent) != 0 {
		t.Fatal("no approval email expected")
	}

	res, err = f.asm.Assemble(context.Background(), s, "weekly")
	if err != nil {
		t.Fatalf("second Assemble: %v", err)
	}
	if res.Newsletter.IssueNumber != 41 {
		t.Fatalf("second issue = %d, want 41", res.Newsletter.IssueNumber)
	}
}

func TestAssembleSendsApprovalLinks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	s := settingsWithKey()
	s.EmailAPIKey = "smtp-pass"
	s.ApprovalEmail = "editor@example.com"

	res, err := f.asm.Assemble(context.Background(), s, "daily")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Newsletter.Status != storage.StatusGenerated {
		t.Fatalf("status = %s", res.Newsletter.Status)
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("emails = %d", len(f.mail.sent))
	}
	got := f.mail.sent[0]
	want := "https://news.example.com/api/newsletters/" + res.Newsletter.ID + "/approve?token=" + url.QueryEscape(res.Newsletter.ApprovalToken)
	if got.ApproveURL != want {
		t.Fatalf("approve url = %q, want %q", got.ApproveURL, want)
	}
	if !strings.Contains(got.RejectURL, "/reject?token=") || got.To != "editor@example.com" {
		t.Fatalf("approval = %+v", got)
	}
}

func TestAssembleDispatchFailureKeepsNewsletter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.mail.err = errors.New("smtp down")
	s := settingsWithKey()
	s.EmailAPIKey = "smtp-pass"
	s.ApprovalEmail = "editor@example.com"

	res, err := f.asm.Assemble(context.Background(), s, "daily")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Dispatch == nil {
		t.Fatal("expected dispatch error")
	}
	if _, err := f.store.GetNewsletter(context.Background(), res.Newsletter.ID); err != nil {
		t.Fatalf("newsletter not kept: %v", err)
	}
	logs, _ := f.store.ListActivityLogs(context.Background(), 0)
	if len(logs) == 0 || logs[0].Type != storage.ActivityWarning {
		t.Fatalf("latest activity = %+v", logs)
	}
}

func TestAssembleGenerationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.gen.err = errors.New("rate limited")
	_, err := f.asm.Assemble(context.Background(), settingsWithKey(), "daily")
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want GenerationError", err)
	}
	list, _ := f.store.ListNewsletters(context.Background(), 0)
	if len(list) != 0 {
		t.Fatal("failed generation must not store a newsletter")
	}
}

func TestApproveRejectAndPublish(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	ctx := context.Background()
	res, err := f.asm.Assemble(ctx, settingsWithKey(), "manual")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	id, token := res.Newsletter.ID, res.Newsletter.ApprovalToken

	if _, err := f.asm.Approve(ctx, id, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Approve wrong token = %v", err)
	}
	if _, err := f.asm.Publish(ctx, settingsWithKey(), id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Publish before approval = %v", err)
	}
	n, err := f.asm.Approve(ctx, id, token)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if n.Status != storage.StatusApproved {
		t.Fatalf("status = %s", n.Status)
	}
	if _, err := f.asm.Reject(ctx, id, token, "late"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Reject after approve = %v", err)
	}

	var pe *PublishError
	if _, err := f.asm.Publish(ctx, settingsWithKey(), id); !errors.As(err, &pe) || !errors.Is(err, publish.ErrNotConfigured) {
		t.Fatalf("Publish unconfigured = %v", err)
	}
	s := settingsWithKey()
	s.PublishAPIKey = "pub-key"
	s.PublicationID = "pub_1"
	n, err = f.asm.Publish(ctx, s, id)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n.Status != storage.StatusPublished || n.ExternalID != "post_1" || n.PublishedAt == nil {
		t.Fatalf("published = %+v", n)
	}
	if len(f.pub.posts) != 1 || f.pub.posts[0].PublicationID != "pub_1" {
		t.Fatalf("posts = %+v", f.pub.posts)
	}
}

func TestRejectStoresReason(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	ctx := context.Background()
	res, err := f.asm.Assemble(ctx, settingsWithKey(), "manual")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	n, err := f.asm.Reject(ctx, res.Newsletter.ID, res.Newsletter.ApprovalToken, " too long ")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if n.Status != storage.StatusRejected || n.RejectionReason != "too long" || n.RejectedAt == nil {
		t.Fatalf("rejected = %+v", n)
	}
}

func TestSocial(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	ctx := context.Background()
	res, err := f.asm.Assemble(ctx, settingsWithKey(), "manual")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, err := f.asm.Social(ctx, settingsWithKey(), res.Newsletter.ID, "myspace"); err == nil {
		t.Fatal("unknown platform accepted")
	}
	p, err := f.asm.Social(ctx, settingsWithKey(), res.Newsletter.ID, storage.PlatformLinkedIn)
	if err != nil {
		t.Fatalf("Social: %v", err)
	}
	if p.Content != "post for linkedin" || p.NewsletterID != res.Newsletter.ID {
		t.Fatalf("post = %+v", p)
	}
	posts, _ := f.store.ListSocialPosts(ctx, res.Newsletter.ID)
	if len(posts) != 1 {
		t.Fatalf("stored posts = %d", len(posts))
	}
}
