package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsbot/internal/newsletter"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

// DailyCheckName is the registry id of the once-a-minute tick.
const DailyCheckName = "daily-check"

const dailyCheckSpec = "* * * * *"

// Registry is the job registry the service keeps in sync with the store.
type Registry interface {
	Register(ctx context.Context, s schedule.Schedule) error
	Unregister(id string) bool
	AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error
	Trigger(id string) error
	Location() *time.Location
}

// Newsletters is the manual side of the newsletter lifecycle.
type Newsletters interface {
	Assembly
	Approve(ctx context.Context, id, token string) (storage.Newsletter, error)
	Reject(ctx context.Context, id, token, reason string) (storage.Newsletter, error)
	Social(ctx context.Context, settings storage.Settings, id string, platform storage.Platform) (storage.SocialPost, error)
}

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Store       storage.Store
	Runner      *Runner
	Registry    Registry
	Engine      scheduler.Enqueuer
	Fetcher     Fetcher
	Newsletters Newsletters
	Now         func() time.Time
}

// Service owns schedule CRUD: every change is persisted first and then
// mirrored into the job registry. It also hosts the manual operations.
type Service struct {
	deps ServiceDeps
	log  logx.Logger
}

func NewService(deps ServiceDeps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, log: log}
}

// Start registers every enabled schedule and the daily check tick.
func (s *Service) Start(ctx context.Context) error {
	list, err := s.deps.Store.ListEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list enabled schedules: %w", err)
	}
	for _, sc := range list {
		if err := s.deps.Registry.Register(ctx, sc); err != nil {
			s.log.Error("schedule not registered", logx.String("id", sc.ID), logx.String("name", sc.Name), logx.Err(err))
		}
	}
	if err := s.deps.Registry.AddCron(DailyCheckName, dailyCheckSpec, 0, s.deps.Runner.DailyCheck); err != nil {
		return fmt.Errorf("register daily check: %w", err)
	}
	s.log.Info("automation started", logx.Int("schedules", len(list)))
	return nil
}

func (s *Service) ListSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	return s.deps.Store.ListSchedules(ctx)
}

func (s *Service) GetSchedule(ctx context.Context, id string) (schedule.Schedule, error) {
	return s.deps.Store.GetSchedule(ctx, id)
}

// CreateSchedule validates in, assigns an id and the first nextRun,
// persists it and registers it when enabled.
func (s *Service) CreateSchedule(ctx context.Context, in schedule.Schedule) (schedule.Schedule, error) {
	sc := schedule.Normalize(in)
	if err := schedule.Validate(sc); err != nil {
		return schedule.Schedule{}, err
	}
	now := s.now()
	next, err := schedule.NextRun(sc.Frequency, sc.Time, now)
	if err != nil {
		return schedule.Schedule{}, err
	}
	sc.ID = uuid.NewString()
	sc.LastRun = nil
	sc.NextRun = next
	sc.CreatedAt = now
	sc.UpdatedAt = now
	if err := s.deps.Store.CreateSchedule(ctx, sc); err != nil {
		return schedule.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	s.activity(ctx, storage.ActivityInfo, fmt.Sprintf("Schedule created: %s", sc.Name), fmt.Sprintf("%s at %s", sc.Frequency, sc.Time))
	if sc.Enabled {
		if err := s.deps.Registry.Register(ctx, sc); err != nil {
			return sc, fmt.Errorf("register schedule: %w", err)
		}
	}
	return sc, nil
}

// UpdateSchedule applies p to the stored schedule. nextRun is recomputed
// when the timing changed, and the registry entry is rebuilt when the
// timing or the enabled flag changed.
func (s *Service) UpdateSchedule(ctx context.Context, id string, p schedule.Patch) (schedule.Schedule, error) {
	cur, err := s.deps.Store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.Schedule{}, err
	}
	next, _ := p.Apply(cur)
	next = schedule.Normalize(next)
	timingChanged := next.Frequency != cur.Frequency || next.Time != cur.Time
	if err := schedule.Validate(next); err != nil {
		return schedule.Schedule{}, err
	}
	now := s.now()
	if timingChanged {
		at, err := schedule.NextRun(next.Frequency, next.Time, now)
		if err != nil {
			return schedule.Schedule{}, err
		}
		next.NextRun = at
	}
	next.UpdatedAt = now
	if err := s.deps.Store.UpdateSchedule(ctx, next); err != nil {
		return schedule.Schedule{}, fmt.Errorf("update schedule: %w", err)
	}

	if timingChanged || next.Enabled != cur.Enabled {
		s.deps.Registry.Unregister(id)
		if next.Enabled {
			if err := s.deps.Registry.Register(ctx, next); err != nil {
				return next, fmt.Errorf("register schedule: %w", err)
			}
		}
	}
	s.activity(ctx, storage.ActivityInfo, fmt.Sprintf("Schedule updated: %s", next.Name), "")
	return next, nil
}

// DeleteSchedule stops future firings and removes the record.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	sc, err := s.deps.Store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	s.deps.Registry.Unregister(id)
	if err := s.deps.Store.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	s.activity(ctx, storage.ActivityInfo, fmt.Sprintf("Schedule deleted: %s", sc.Name), "")
	return nil
}

// RunScheduleNow queues an immediate run. Disabled schedules have no
// registry entry and go straight to the engine under the same key.
func (s *Service) RunScheduleNow(ctx context.Context, id string) error {
	sc, err := s.deps.Store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	err = s.deps.Registry.Trigger(id)
	if !errors.Is(err, scheduler.ErrNotRegistered) {
		return err
	}
	if s.deps.Engine == nil {
		return engine.ErrStopped
	}
	runner := s.deps.Runner
	return s.deps.Engine.Enqueue(engine.Task{
		Name: "schedule:" + sc.Name,
		Key:  sc.ID,
		Run:  func(ctx context.Context) error { return runner.RunByID(ctx, sc.ID) },
	})
}

// FetchArticles replaces the working set from sourceURL, or from the
// default news source when sourceURL is empty.
func (s *Service) FetchArticles(ctx context.Context, sourceURL string, limit int) ([]storage.Article, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(settings.DefaultNewsSource)
	}
	if sourceURL == "" {
		return nil, ErrNoSource
	}
	if limit <= 0 {
		limit = settings.MaxDailyArticles
	}
	items, err := s.deps.Fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		s.activity(ctx, storage.ActivityError, "Manual fetch failed", err.Error())
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	n, err := ReplaceArticles(ctx, s.deps.Store, items, limit, settings.AutoSelectArticles)
	if err != nil {
		return nil, err
	}
	s.activity(ctx, storage.ActivitySuccess, "Articles fetched", fmt.Sprintf("%d articles from %s", n, sourceURL))
	return s.deps.Store.ListArticles(ctx)
}

func (s *Service) ListArticles(ctx context.Context) ([]storage.Article, error) {
	return s.deps.Store.ListArticles(ctx)
}

func (s *Service) SelectArticle(ctx context.Context, id string, selected bool) (storage.Article, error) {
	return s.deps.Store.SetArticleSelected(ctx, id, selected)
}

// GenerateNewsletter assembles a newsletter from the current selection.
func (s *Service) GenerateNewsletter(ctx context.Context) (newsletter.Result, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return newsletter.Result{}, err
	}
	res, err := s.deps.Newsletters.Assemble(ctx, settings, "manual")
	var ge *GenerationError
	if errors.As(err, &ge) {
		s.activity(ctx, storage.ActivityError, "Newsletter generation failed", ge.Err.Error())
	}
	return res, err
}

func (s *Service) ListNewsletters(ctx context.Context, limit int) ([]storage.Newsletter, error) {
	return s.deps.Store.ListNewsletters(ctx, limit)
}

func (s *Service) GetNewsletter(ctx context.Context, id string) (storage.Newsletter, error) {
	return s.deps.Store.GetNewsletter(ctx, id)
}

func (s *Service) ApproveNewsletter(ctx context.Context, id, token string) (storage.Newsletter, error) {
	return s.deps.Newsletters.Approve(ctx, id, token)
}

func (s *Service) RejectNewsletter(ctx context.Context, id, token, reason string) (storage.Newsletter, error) {
	return s.deps.Newsletters.Reject(ctx, id, token, reason)
}

func (s *Service) PublishNewsletter(ctx context.Context, id string) (storage.Newsletter, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return storage.Newsletter{}, err
	}
	n, err := s.deps.Newsletters.Publish(ctx, settings, id)
	var pe *PublishError
	if errors.As(err, &pe) {
		s.activity(ctx, storage.ActivityError, "Newsletter publish failed", pe.Err.Error())
	}
	return n, err
}

func (s *Service) GenerateSocialPost(ctx context.Context, id string, platform storage.Platform) (storage.SocialPost, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return storage.SocialPost{}, err
	}
	return s.deps.Newsletters.Social(ctx, settings, id, platform)
}

func (s *Service) ListSocialPosts(ctx context.Context, newsletterID string) ([]storage.SocialPost, error) {
	return s.deps.Store.ListSocialPosts(ctx, newsletterID)
}

func (s *Service) ListActivity(ctx context.Context, limit int) ([]storage.ActivityLog, error) {
	return s.deps.Store.ListActivityLogs(ctx, limit)
}

// now is the service clock in the scheduler timezone.
func (s *Service) now() time.Time {
	return s.deps.Now().In(s.deps.Registry.Location())
}

func (s *Service) activity(ctx context.Context, typ storage.ActivityType, msg, details string) {
	if err := s.deps.Store.CreateActivityLog(ctx, storage.ActivityLog{Message: msg, Details: details, Type: typ}); err != nil {
		s.log.Warn("activity log write failed", logx.String("message", msg), logx.Err(err))
	}
}
