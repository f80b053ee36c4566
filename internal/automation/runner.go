// Package automation runs scheduled and daily newsletter jobs and owns the
// schedule lifecycle (persist, then register with the job registry).
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsbot/internal/eventbus"
	"newsbot/internal/feed"
	"newsbot/internal/newsletter"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

// Store is the persistence the runner needs.
type Store interface {
	GetSchedule(ctx context.Context, id string) (schedule.Schedule, error)
	RecordRun(ctx context.Context, id string, at time.Time) (schedule.Schedule, error)
	GetSettings(ctx context.Context) (storage.Settings, error)
	ClearArticles(ctx context.Context) error
	CreateArticle(ctx context.Context, a storage.Article) (storage.Article, error)
	CreateActivityLog(ctx context.Context, e storage.ActivityLog) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Item, error)
}

// Assembly is the newsletter side of a run.
type Assembly interface {
	Assemble(ctx context.Context, settings storage.Settings, frequency string) (newsletter.Result, error)
	Publish(ctx context.Context, settings storage.Settings, id string) (storage.Newsletter, error)
}

// RunnerDeps are the collaborators of a Runner. Bus, Now and Location may be
// nil.
type RunnerDeps struct {
	Store    Store
	Fetcher  Fetcher
	Assembly Assembly
	Bus      eventbus.Bus
	Now      func() time.Time
	Location func() *time.Location
}

// Runner executes one schedule run or one daily generation at a time. It is
// called from the task engine.
type Runner struct {
	deps RunnerDeps
	log  logx.Logger
}

func NewRunner(deps RunnerDeps, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = func() *time.Location { return time.Local }
	}
	return &Runner{deps: deps, log: log}
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

type RunKind string

const (
	KindSchedule RunKind = "schedule"
	KindDaily    RunKind = "daily"
)

// RunResult is the explicit outcome of one run. It is handed to a single
// recorder that writes the activity log.
type RunResult struct {
	Kind       RunKind             `json:"kind"`
	ScheduleID string              `json:"scheduleId,omitempty"`
	Name       string              `json:"name"`
	Outcome    Outcome             `json:"outcome"`
	Articles   int                 `json:"articles"`
	Newsletter *storage.Newsletter `json:"newsletter,omitempty"`
	Awaiting   bool                `json:"awaiting,omitempty"`
	Started    time.Time           `json:"started"`
	Duration   time.Duration       `json:"duration"`
	Err        error               `json:"-"`
}

// Stage names the step a failed run stopped at.
func (r RunResult) Stage() string {
	var (
		fe *FetchError
		ge *GenerationError
		pe *PublishError
	)
	switch {
	case r.Err == nil:
		return ""
	case errors.As(r.Err, &fe):
		return "fetch"
	case errors.As(r.Err, &ge):
		return "generate"
	case errors.As(r.Err, &pe):
		return "publish"
	default:
		return "store"
	}
}

// RunByID runs the schedule with id. It matches scheduler.RunFunc.
func (r *Runner) RunByID(ctx context.Context, id string) error {
	return r.RunSchedule(ctx, id).Err
}

// RunSchedule executes one scheduled run: fetch, replace the working set,
// record lastRun/nextRun, then optionally generate and publish.
func (r *Runner) RunSchedule(ctx context.Context, id string) RunResult {
	res := RunResult{Kind: KindSchedule, ScheduleID: id, Started: r.deps.Now()}
	sched, err := r.deps.Store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted while its trigger was queued.
			r.log.Debug("schedule gone before run", logx.String("id", id))
			res.Outcome = OutcomeSkipped
			return res
		}
		res.Err = fmt.Errorf("load schedule: %w", err)
		return r.record(ctx, res)
	}
	res.Name = sched.Name
	r.activity(ctx, storage.ActivityInfo, fmt.Sprintf("Executing scheduled job: %s", sched.Name), sched.SourceURL)

	n, err := r.refreshArticles(ctx, sched.SourceURL, sched.MaxArticles, true)
	if err != nil {
		res.Err = err
		return r.record(ctx, res)
	}
	res.Articles = n

	// The row is re-read here: the schedule may have been edited while the
	// feed was downloading, and those edits win.
	now := r.deps.Now().In(r.deps.Location())
	sched, err = r.deps.Store.RecordRun(ctx, id, now)
	if errors.Is(err, storage.ErrNotFound) {
		r.log.Debug("schedule deleted during run", logx.String("id", id))
		res.Outcome = OutcomeSkipped
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("record run: %w", err)
		return r.record(ctx, res)
	}

	if sched.AutoApprove {
		settings, err := r.deps.Store.GetSettings(ctx)
		if err != nil {
			res.Err = fmt.Errorf("load settings: %w", err)
			return r.record(ctx, res)
		}
		if strings.TrimSpace(settings.GenerationAPIKey) != "" {
			nl, err := r.generate(ctx, settings, string(sched.Frequency))
			res.Newsletter = nl
			if err != nil {
				res.Err = err
				return r.record(ctx, res)
			}
		}
	}
	return r.record(ctx, res)
}

// DailyCheck is the once-a-minute tick. It only acts when the daily slot is
// enabled and the tick's wall clock minute equals the configured time.
// Missed minutes are not caught up.
func (r *Runner) DailyCheck(ctx context.Context) error {
	settings, err := r.deps.Store.GetSettings(ctx)
	if err != nil {
		r.log.Error("daily check: load settings", logx.Err(err))
		return err
	}
	if !settings.DailyScheduleEnabled {
		return nil
	}
	at, ok := scheduler.FiredAt(ctx)
	if !ok {
		at = r.deps.Now()
	}
	want, err := schedule.CanonicalTimeOfDay(settings.DailyScheduleTime)
	if err != nil {
		r.log.Warn("daily check: bad daily schedule time", logx.String("time", settings.DailyScheduleTime), logx.Err(err))
		return nil
	}
	if schedule.ClockHHMM(at.In(r.deps.Location())) != want {
		return nil
	}
	return r.RunDaily(ctx, settings).Err
}

// RunDaily executes the daily generation path with the given settings
// snapshot.
func (r *Runner) RunDaily(ctx context.Context, settings storage.Settings) RunResult {
	settings = settings.WithDefaults()
	res := RunResult{Kind: KindDaily, Name: "daily generation", Started: r.deps.Now()}
	source := strings.TrimSpace(settings.DefaultNewsSource)
	if source == "" {
		r.log.Debug("daily generation skipped: no default news source")
		res.Outcome = OutcomeSkipped
		return res
	}
	r.activity(ctx, storage.ActivityInfo, "Starting daily newsletter generation", source)

	n, err := r.refreshArticles(ctx, source, settings.MaxDailyArticles, settings.AutoSelectArticles)
	if err != nil {
		res.Err = err
		return r.record(ctx, res)
	}
	res.Articles = n

	if settings.ApprovalRequired {
		res.Awaiting = true
		r.activity(ctx, storage.ActivityInfo, "Articles fetched; awaiting manual generation", fmt.Sprintf("%d articles stored", n))
		return r.record(ctx, res)
	}
	nl, err := r.generate(ctx, settings, string(schedule.Daily))
	res.Newsletter = nl
	res.Err = err
	return r.record(ctx, res)
}

// refreshArticles fetches url and replaces the working set with at most
// limit items. A failed fetch leaves the set untouched.
func (r *Runner) refreshArticles(ctx context.Context, url string, limit int, selected bool) (int, error) {
	items, err := r.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	return ReplaceArticles(ctx, r.deps.Store, items, limit, selected)
}

// generate runs assembly and, for an approved issue with auto-publish on,
// publishing. ErrNothingToAssemble is not an error here.
func (r *Runner) generate(ctx context.Context, settings storage.Settings, frequency string) (*storage.Newsletter, error) {
	out, err := r.deps.Assembly.Assemble(ctx, settings, frequency)
	if errors.Is(err, newsletter.ErrNothingToAssemble) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	nl := out.Newsletter
	if nl.Status == storage.StatusApproved && settings.AutoPublish && settings.PublishAPIKey != "" {
		published, err := r.deps.Assembly.Publish(ctx, settings, nl.ID)
		if err != nil {
			return &nl, err
		}
		nl = published
	}
	return &nl, nil
}

// record is the single place a run's outcome turns into activity entries,
// process logs and a bus event.
func (r *Runner) record(ctx context.Context, res RunResult) RunResult {
	res.Duration = r.deps.Now().Sub(res.Started)
	label := "Scheduled job"
	if res.Kind == KindDaily {
		label = "Daily generation"
	}
	switch {
	case res.Err != nil:
		res.Outcome = OutcomeFailed
		r.log.Warn("run failed",
			logx.String("kind", string(res.Kind)),
			logx.String("name", res.Name),
			logx.String("stage", res.Stage()),
			logx.Err(res.Err),
		)
		r.activity(ctx, storage.ActivityError, fmt.Sprintf("%s failed: %s", label, res.Name), res.Err.Error())
	default:
		res.Outcome = OutcomeSucceeded
		r.log.Info("run completed",
			logx.String("kind", string(res.Kind)),
			logx.String("name", res.Name),
			logx.Int("articles", res.Articles),
			logx.Duration("took", res.Duration),
		)
		if !res.Awaiting {
			r.activity(ctx, storage.ActivitySuccess, fmt.Sprintf("%s completed: %s", label, res.Name), fmt.Sprintf("Processed %d articles", res.Articles))
		}
	}
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(eventbus.Event{Type: eventbus.RunCompleted, Time: r.deps.Now(), Data: res})
	}
	return res
}

func (r *Runner) activity(ctx context.Context, typ storage.ActivityType, msg, details string) {
	// Audit entries are written even after the run context ended.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.deps.Store.CreateActivityLog(wctx, storage.ActivityLog{Message: msg, Details: details, Type: typ}); err != nil {
		r.log.Warn("activity log write failed", logx.String("message", msg), logx.Err(err))
	}
}

// ArticleWriter is what ReplaceArticles writes to.
type ArticleWriter interface {
	ClearArticles(ctx context.Context) error
	CreateArticle(ctx context.Context, a storage.Article) (storage.Article, error)
}

// ReplaceArticles clears the working set and stores up to limit of items.
func ReplaceArticles(ctx context.Context, w ArticleWriter, items []feed.Item, limit int, selected bool) (int, error) {
	if limit <= 0 {
		limit = schedule.DefaultMaxArticles
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if err := w.ClearArticles(ctx); err != nil {
		return 0, fmt.Errorf("clear articles: %w", err)
	}
	for i, it := range items {
		_, err := w.CreateArticle(ctx, storage.Article{
			Title:         it.Title,
			Content:       it.Content,
			Source:        it.Source,
			URL:           it.URL,
			PublishedDate: it.PublishedDate,
			Selected:      selected,
		})
		if err != nil {
			return i, fmt.Errorf("store article: %w", err)
		}
	}
	return len(items), nil
}
