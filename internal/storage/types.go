package storage

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Article is one entry of the working set. The set is replaced wholesale on
// every fetch.
type Article struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Source        string     `json:"source"`
	URL           string     `json:"url"`
	PublishedDate *time.Time `json:"publishedDate,omitempty"`
	Selected      bool       `json:"selected"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type NewsletterStatus string

const (
	StatusDraft     NewsletterStatus = "draft"
	StatusGenerated NewsletterStatus = "generated"
	StatusApproved  NewsletterStatus = "approved"
	StatusRejected  NewsletterStatus = "rejected"
	StatusPublished NewsletterStatus = "published"
)

// Newsletter is one generated issue.
type Newsletter struct {
	ID              string           `json:"id"`
	IssueNumber     int              `json:"issueNumber"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	WordCount       int              `json:"wordCount"`
	Status          NewsletterStatus `json:"status"`
	Frequency       string           `json:"frequency,omitempty"`
	ApprovalToken   string           `json:"-"`
	ApprovedAt      *time.Time       `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time       `json:"rejectedAt,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	PublishedAt     *time.Time       `json:"publishedAt,omitempty"`
	ExternalID      string           `json:"externalId,omitempty"`
	ExternalURL     string           `json:"externalUrl,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
	PlatformFacebook Platform = "facebook"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitter, PlatformLinkedIn, PlatformFacebook:
		return true
	}
	return false
}

// SocialPost is a short promotional post derived from a newsletter.
type SocialPost struct {
	ID           string    `json:"id"`
	NewsletterID string    `json:"newsletterId"`
	Platform     Platform  `json:"platform"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ActivityType string

const (
	ActivityInfo    ActivityType = "info"
	ActivitySuccess ActivityType = "success"
	ActivityWarning ActivityType = "warning"
	ActivityError   ActivityType = "error"
)

// ActivityLog is one user-visible audit entry.
type ActivityLog struct {
	ID        int64        `json:"id"`
	Message   string       `json:"message"`
	Details   string       `json:"details,omitempty"`
	Type      ActivityType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Settings is the global singleton configuration edited by the operator.
// The scheduling code only ever reads it.
type Settings struct {
	DailyScheduleEnabled bool   `json:"dailyScheduleEnabled"`
	DailyScheduleTime    string `json:"dailyScheduleTime"`
	DefaultNewsSource    string `json:"defaultNewsSource"`
	MaxDailyArticles     int    `json:"maxDailyArticles"`
	AutoSelectArticles   bool   `json:"autoSelectArticles"`
	ApprovalRequired     bool   `json:"approvalRequired"`

	GenerationProvider string   `json:"generationProvider"`
	GenerationAPIKey   string   `json:"generationApiKey"`
	GenerationModel    string   `json:"generationModel"`
	Temperature        *float64 `json:"temperature"`
	MaxTokens          int      `json:"maxTokens"`
	NewsletterTitle    string   `json:"newsletterTitle"`
	IssueStartNumber   int      `json:"issueStartNumber"`

	EmailAPIKey   string `json:"emailApiKey"`
	ApprovalEmail string `json:"approvalEmail"`

	PublishAPIKey string `json:"publishApiKey"`
	PublicationID string `json:"publicationId"`
	AutoPublish   bool   `json:"autoPublish"`

	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	DefaultDailyTime        = "09:00"
	DefaultMaxDailyArticles = 5
	DefaultProvider         = "anthropic"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 4000
	DefaultNewsletterTitle  = "Newsletter"
)

// DefaultSettings is what GetSettings returns before the operator saved
// anything.
func DefaultSettings() Settings {
	return Settings{
		DailyScheduleTime:  DefaultDailyTime,
		MaxDailyArticles:   DefaultMaxDailyArticles,
		AutoSelectArticles: true,
		ApprovalRequired:   true,
		GenerationProvider: DefaultProvider,
		Temperature:        Float(DefaultTemperature),
		MaxTokens:          DefaultMaxTokens,
		NewsletterTitle:    DefaultNewsletterTitle,
		IssueStartNumber:   1,
	}
}

// WithDefaults fills zero-valued tunables.
func (s Settings) WithDefaults() Settings {
	if strings.TrimSpace(s.DailyScheduleTime) == "" {
		s.DailyScheduleTime = DefaultDailyTime
	}
	if s.MaxDailyArticles <= 0 {
		s.MaxDailyArticles = DefaultMaxDailyArticles
	}
	if strings.TrimSpace(s.GenerationProvider) == "" {
		s.GenerationProvider = DefaultProvider
	}
	// Zero is a valid temperature; only an unset one takes the default.
	if s.Temperature == nil {
		s.Temperature = Float(DefaultTemperature)
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if strings.TrimSpace(s.NewsletterTitle) == "" {
		s.NewsletterTitle = DefaultNewsletterTitle
	}
	if s.IssueStartNumber <= 0 {
		s.IssueStartNumber = 1
	}
	return s
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 { return &v }

func (s Settings) clone() Settings {
	if s.Temperature != nil {
		s.Temperature = Float(*s.Temperature)
	}
	return s
}

// Redacted masks secrets for display.
func (s Settings) Redacted() Settings {
	s.GenerationAPIKey = mask(s.GenerationAPIKey)
	s.EmailAPIKey = mask(s.EmailAPIKey)
	s.PublishAPIKey = mask(s.PublishAPIKey)
	return s
}

func mask(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
