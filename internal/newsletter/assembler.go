// Package newsletter turns the selected article set into a stored issue and
// drives it through approval, publishing and social post generation.
package newsletter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsbot/internal/eventbus"
	"newsbot/internal/generate"
	"newsbot/internal/mailer"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	logx "newsbot/pkg/logx"
)

const previewChars = 600

// Store is the persistence the assembler needs.
type Store interface {
	ListSelectedArticles(ctx context.Context) ([]storage.Article, error)
	NextIssueNumber(ctx context.Context, start int) (int, error)
	CreateNewsletter(ctx context.Context, n storage.Newsletter) (storage.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (storage.Newsletter, error)
	UpdateNewsletter(ctx context.Context, n storage.Newsletter) error
	CreateSocialPost(ctx context.Context, p storage.SocialPost) (storage.SocialPost, error)
	CreateActivityLog(ctx context.Context, e storage.ActivityLog) error
}

// Generators hands out a generator for a provider and key.
type Generators interface {
	For(provider, apiKey string) (generate.Generator, error)
}

type ApprovalSender interface {
	SendApproval(ctx context.Context, a mailer.Approval) error
}

type Publisher interface {
	Publish(ctx context.Context, p publish.Post) (publish.Published, error)
}

// Config holds process-level settings.
type Config struct {
	// PublicBaseURL prefixes the approve/reject links in approval emails.
	PublicBaseURL string
}

// Deps are the collaborators of an Assembler. Mail, Publish and Bus may be
// nil.
type Deps struct {
	Store      Store
	Generators Generators
	Mail       ApprovalSender
	Publish    Publisher
	Bus        eventbus.Bus
	Now        func() time.Time
}

type Assembler struct {
	cfg  Config
	deps Deps
	log  logx.Logger
}

func New(cfg Config, deps Deps, log logx.Logger) *Assembler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Assembler{cfg: cfg, deps: deps, log: log}
}

// Result is the outcome of one assembly.
type Result struct {
	Newsletter storage.Newsletter
	// Dispatch is set when the approval email could not be sent.
	Dispatch *DispatchError
}

// Assemble generates a newsletter from the selected articles under the
// given settings snapshot. frequency tags the issue ("daily", "weekly",
// "manual", ...).
func (a *Assembler) Assemble(ctx context.Context, settings storage.Settings, frequency string) (Result, error) {
	settings = settings.WithDefaults()
	if strings.TrimSpace(settings.GenerationAPIKey) == "" {
		return Result{}, ErrNothingToAssemble
	}
	articles, err := a.deps.Store.ListSelectedArticles(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list selected articles: %w", err)
	}
	if len(articles) == 0 {
		return Result{}, ErrNothingToAssemble
	}

	gen, err := a.deps.Generators.For(settings.GenerationProvider, settings.GenerationAPIKey)
	if err != nil {
		return Result{}, &GenerationError{Err: err}
	}
	issue, err := a.deps.Store.NextIssueNumber(ctx, settings.IssueStartNumber)
	if err != nil {
		return Result{}, fmt.Errorf("next issue number: %w", err)
	}

	now := a.deps.Now()
	content, err := gen.Generate(ctx, generate.Request{
		Articles:    toPromptArticles(articles),
		IssueNumber: issue,
		Date:        now,
		Title:       settings.NewsletterTitle,
		Frequency:   frequency,
		Model:       settings.GenerationModel,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return Result{}, &GenerationError{Err: err}
	}

	n := storage.Newsletter{
		IssueNumber: issue,
		Title:       fmt.Sprintf("%s #%d", settings.NewsletterTitle, issue),
		Content:     content,
		WordCount:   len(strings.Fields(content)),
		Frequency:   frequency,
	}
	if settings.ApprovalRequired {
		n.Status = storage.StatusGenerated
		n.ApprovalToken = uuid.NewString()
	} else {
		n.Status = storage.StatusApproved
		n.ApprovedAt = &now
	}
	n, err = a.deps.Store.CreateNewsletter(ctx, n)
	if err != nil {
		return Result{}, fmt.Errorf("store newsletter: %w", err)
	}
	a.log.Info("newsletter generated",
		logx.String("id", n.ID),
		logx.Int("issue", n.IssueNumber),
		logx.Int("words", n.WordCount),
		logx.String("status", string(n.Status)),
	)
	a.emit(eventbus.NewsletterCreated, n)
	a.activity(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("Newsletter #%d generated", n.IssueNumber),
		Details: fmt.Sprintf("%d articles, %d words, status %s", len(articles), n.WordCount, n.Status),
		Type:    storage.ActivitySuccess,
	})

	res := Result{Newsletter: n}
	if settings.ApprovalRequired && settings.EmailAPIKey != "" && settings.ApprovalEmail != "" && a.deps.Mail != nil {
		if err := a.sendApproval(ctx, settings, n); err != nil {
			res.Dispatch = &DispatchError{NewsletterID: n.ID, Err: err}
			a.log.Warn("approval email failed", logx.String("id", n.ID), logx.Err(err))
			a.activity(ctx, storage.ActivityLog{
				Message: fmt.Sprintf("Approval email for newsletter #%d failed", n.IssueNumber),
				Details: err.Error(),
				Type:    storage.ActivityWarning,
			})
		}
	}
	return res, nil
}

func (a *Assembler) sendApproval(ctx context.Context, settings storage.Settings, n storage.Newsletter) error {
	return a.deps.Mail.SendApproval(ctx, mailer.Approval{
		APIKey:      settings.EmailAPIKey,
		To:          settings.ApprovalEmail,
		Title:       n.Title,
		IssueNumber: n.IssueNumber,
		WordCount:   n.WordCount,
		Preview:     preview(n.Content, previewChars),
		ApproveURL:  a.actionURL(n, "approve"),
		RejectURL:   a.actionURL(n, "reject"),
	})
}

// actionURL builds {base}/api/newsletters/{id}/{action}?token=...
func (a *Assembler) actionURL(n storage.Newsletter, action string) string {
	base := strings.TrimRight(strings.TrimSpace(a.cfg.PublicBaseURL), "/")
	return fmt.Sprintf("%s/api/newsletters/%s/%s?token=%s", base, url.PathEscape(n.ID), action, url.QueryEscape(n.ApprovalToken))
}

func (a *Assembler) emit(typ string, n storage.Newsletter) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(eventbus.Event{Type: typ, Time: a.deps.Now(), Data: n})
}

func (a *Assembler) activity(ctx context.Context, e storage.ActivityLog) {
	if err := a.deps.Store.CreateActivityLog(ctx, e); err != nil {
		a.log.Warn("activity log write failed", logx.String("message", e.Message), logx.Err(err))
	}
}

func toPromptArticles(in []storage.Article) []generate.Article {
	out := make([]generate.Article, 0, len(in))
	for _, a := range in {
		out = append(out, generate.Article{Title: a.Title, Content: a.Content, Source: a.Source, URL: a.URL})
	}
	return out
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
