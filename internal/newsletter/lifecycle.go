package newsletter

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"newsbot/internal/eventbus"
	"newsbot/internal/generate"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	logx "newsbot/pkg/logx"
)

// Approve marks a generated newsletter approved when token matches the one
// issued with its approval email.
func (a *Assembler) Approve(ctx context.Context, id, token string) (storage.Newsletter, error) {
	n, err := a.pending(ctx, id, token)
	if err != nil {
		return storage.Newsletter{}, err
	}
	now := a.deps.Now()
	n.Status = storage.StatusApproved
	n.ApprovedAt = &now
	n.ApprovalToken = ""
	if err := a.deps.Store.UpdateNewsletter(ctx, n); err != nil {
		return storage.Newsletter{}, fmt.Errorf("update newsletter: %w", err)
	}
	a.emit(eventbus.NewsletterApproved, n)
	a.activity(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("Newsletter #%d approved", n.IssueNumber),
		Type:    storage.ActivitySuccess,
	})
	return n, nil
}

// Reject marks a generated newsletter rejected.
func (a *Assembler) Reject(ctx context.Context, id, token, reason string) (storage.Newsletter, error) {
	n, err := a.pending(ctx, id, token)
	if err != nil {
		return storage.Newsletter{}, err
	}
	now := a.deps.Now()
	n.Status = storage.StatusRejected
	n.RejectedAt = &now
	n.RejectionReason = strings.TrimSpace(reason)
	n.ApprovalToken = ""
	if err := a.deps.Store.UpdateNewsletter(ctx, n); err != nil {
		return storage.Newsletter{}, fmt.Errorf("update newsletter: %w", err)
	}
	a.emit(eventbus.NewsletterRejected, n)
	a.activity(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("Newsletter #%d rejected", n.IssueNumber),
		Details: n.RejectionReason,
		Type:    storage.ActivityWarning,
	})
	return n, nil
}

func (a *Assembler) pending(ctx context.Context, id, token string) (storage.Newsletter, error) {
	n, err := a.deps.Store.GetNewsletter(ctx, id)
	if err != nil {
		return storage.Newsletter{}, err
	}
	if n.Status != storage.StatusGenerated && n.Status != storage.StatusDraft {
		return storage.Newsletter{}, fmt.Errorf("%w: status is %s", ErrInvalidState, n.Status)
	}
	if n.ApprovalToken == "" || subtle.ConstantTimeCompare([]byte(n.ApprovalToken), []byte(token)) != 1 {
		return storage.Newsletter{}, ErrInvalidToken
	}
	return n, nil
}

// Publish sends an approved newsletter to the publishing platform.
func (a *Assembler) Publish(ctx context.Context, settings storage.Settings, id string) (storage.Newsletter, error) {
	n, err := a.deps.Store.GetNewsletter(ctx, id)
	if err != nil {
		return storage.Newsletter{}, err
	}
	if n.Status != storage.StatusApproved {
		return storage.Newsletter{}, fmt.Errorf("%w: status is %s", ErrInvalidState, n.Status)
	}
	if a.deps.Publish == nil || settings.PublishAPIKey == "" || settings.PublicationID == "" {
		return storage.Newsletter{}, &PublishError{NewsletterID: n.ID, Err: publish.ErrNotConfigured}
	}

	out, err := a.deps.Publish.Publish(ctx, publish.Post{
		APIKey:        settings.PublishAPIKey,
		PublicationID: settings.PublicationID,
		Title:         n.Title,
		Content:       n.Content,
	})
	if err != nil {
		return storage.Newsletter{}, &PublishError{NewsletterID: n.ID, Err: err}
	}

	now := a.deps.Now()
	n.Status = storage.StatusPublished
	n.PublishedAt = &now
	n.ExternalID = out.ExternalID
	n.ExternalURL = out.WebURL
	if err := a.deps.Store.UpdateNewsletter(ctx, n); err != nil {
		return storage.Newsletter{}, fmt.Errorf("update newsletter: %w", err)
	}
	a.log.Info("newsletter published", logx.String("id", n.ID), logx.String("external_id", n.ExternalID))
	a.emit(eventbus.NewsletterPublished, n)
	a.activity(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("Newsletter #%d published", n.IssueNumber),
		Details: n.ExternalURL,
		Type:    storage.ActivitySuccess,
	})
	return n, nil
}

// Social generates and stores a promotional post for one platform.
func (a *Assembler) Social(ctx context.Context, settings storage.Settings, id string, platform storage.Platform) (storage.SocialPost, error) {
	if !platform.Valid() {
		return storage.SocialPost{}, fmt.Errorf("unsupported platform %q", platform)
	}
	settings = settings.WithDefaults()
	n, err := a.deps.Store.GetNewsletter(ctx, id)
	if err != nil {
		return storage.SocialPost{}, err
	}
	gen, err := a.deps.Generators.For(settings.GenerationProvider, settings.GenerationAPIKey)
	if err != nil {
		return storage.SocialPost{}, &GenerationError{Err: err}
	}
	text, err := gen.SocialPost(ctx, generate.SocialRequest{
		Platform:        string(platform),
		NewsletterTitle: n.Title,
		IssueNumber:     n.IssueNumber,
		Content:         n.Content,
		Link:            n.ExternalURL,
		Model:           settings.GenerationModel,
		Temperature:     settings.Temperature,
	})
	if err != nil {
		return storage.SocialPost{}, &GenerationError{Err: err}
	}
	p, err := a.deps.Store.CreateSocialPost(ctx, storage.SocialPost{NewsletterID: n.ID, Platform: platform, Content: text})
	if err != nil {
		return storage.SocialPost{}, fmt.Errorf("store social post: %w", err)
	}
	a.activity(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("%s post generated for newsletter #%d", platform, n.IssueNumber),
		Type:    storage.ActivityInfo,
	})
	return p, nil
}
