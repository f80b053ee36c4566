package automation

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"newsbot/internal/generate"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
)

const maskPrefix = "****"

// GetSettings returns the current settings snapshot with defaults applied.
func (s *Service) GetSettings(ctx context.Context) (storage.Settings, error) {
	st, err := s.deps.Store.GetSettings(ctx)
	if err != nil {
		return storage.Settings{}, err
	}
	return st.WithDefaults(), nil
}

// SaveSettings validates and stores in. Secret fields that come back in
// their redacted form keep the stored value.
func (s *Service) SaveSettings(ctx context.Context, in storage.Settings) (storage.Settings, error) {
	cur, err := s.deps.Store.GetSettings(ctx)
	if err != nil {
		return storage.Settings{}, err
	}
	in.GenerationAPIKey = keepSecret(in.GenerationAPIKey, cur.GenerationAPIKey)
	in.EmailAPIKey = keepSecret(in.EmailAPIKey, cur.EmailAPIKey)
	in.PublishAPIKey = keepSecret(in.PublishAPIKey, cur.PublishAPIKey)
	in.DailyScheduleTime = strings.TrimSpace(in.DailyScheduleTime)
	if tod, err := schedule.CanonicalTimeOfDay(in.DailyScheduleTime); err == nil {
		in.DailyScheduleTime = tod
	}
	in.DefaultNewsSource = strings.TrimSpace(in.DefaultNewsSource)
	in.ApprovalEmail = strings.TrimSpace(in.ApprovalEmail)
	in.GenerationProvider = strings.ToLower(strings.TrimSpace(in.GenerationProvider))
	in = in.WithDefaults()

	if err := ValidateSettings(in); err != nil {
		return storage.Settings{}, err
	}
	in.UpdatedAt = s.deps.Now()
	if err := s.deps.Store.SaveSettings(ctx, in); err != nil {
		return storage.Settings{}, err
	}
	s.activity(ctx, storage.ActivityInfo, "Settings updated", "")
	return in, nil
}

// ValidateSettings checks operator-edited settings.
func ValidateSettings(st storage.Settings) error {
	err := validation.ValidateStruct(&st,
		validation.Field(&st.DailyScheduleTime, validation.Required, validation.By(func(v interface{}) error {
			if _, _, err := schedule.ParseTimeOfDay(v.(string)); err != nil {
				return errors.New("must be HH:MM (24h)")
			}
			return nil
		})),
		validation.Field(&st.DefaultNewsSource, is.URL),
		validation.Field(&st.MaxDailyArticles, validation.Min(1), validation.Max(schedule.MaxArticlesLimit)),
		validation.Field(&st.GenerationProvider, validation.In(generate.ProviderAnthropic, generate.ProviderOpenAI)),
		validation.Field(&st.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&st.MaxTokens, validation.Min(1), validation.Max(64000)),
		validation.Field(&st.NewsletterTitle, validation.Length(1, 200)),
		validation.Field(&st.IssueStartNumber, validation.Min(1)),
		validation.Field(&st.ApprovalEmail, is.EmailFormat),
	)
	if err != nil {
		return &schedule.ValidationError{Err: err}
	}
	return nil
}

func keepSecret(in, cur string) string {
	if strings.HasPrefix(strings.TrimSpace(in), maskPrefix) {
		return cur
	}
	return strings.TrimSpace(in)
}
