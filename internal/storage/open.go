package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"newsbot/internal/schedule"
	logx "newsbot/pkg/logx"
)

// Store is the persistence API used by the scheduler, automation and API
// layers.
type Store interface {
	ListSchedules(ctx context.Context) ([]schedule.Schedule, error)
	ListEnabledSchedules(ctx context.Context) ([]schedule.Schedule, error)
	GetSchedule(ctx context.Context, id string) (schedule.Schedule, error)
	CreateSchedule(ctx context.Context, s schedule.Schedule) error
	UpdateSchedule(ctx context.Context, s schedule.Schedule) error
	// RecordRun sets lastRun to at and recomputes nextRun from the stored
	// frequency and time. No other column is written.
	RecordRun(ctx context.Context, id string, at time.Time) (schedule.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	ListArticles(ctx context.Context) ([]Article, error)
	ListSelectedArticles(ctx context.Context) ([]Article, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	CreateArticle(ctx context.Context, a Article) (Article, error)
	SetArticleSelected(ctx context.Context, id string, selected bool) (Article, error)
	ClearArticles(ctx context.Context) error

	CreateNewsletter(ctx context.Context, n Newsletter) (Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (Newsletter, error)
	ListNewsletters(ctx context.Context, limit int) ([]Newsletter, error)
	UpdateNewsletter(ctx context.Context, n Newsletter) error
	NextIssueNumber(ctx context.Context, start int) (int, error)

	CreateSocialPost(ctx context.Context, p SocialPost) (SocialPost, error)
	ListSocialPosts(ctx context.Context, newsletterID string) ([]SocialPost, error)

	CreateActivityLog(ctx context.Context, e ActivityLog) error
	ListActivityLogs(ctx context.Context, limit int) ([]ActivityLog, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
