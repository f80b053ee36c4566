package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsbot/internal/schedule"
)

// memoryStore keeps everything in process memory. Slices preserve insertion
// order the same way the sqlite driver orders by rowid.
type memoryStore struct {
	mu sync.Mutex

	schedules   []schedule.Schedule
	settings    *Settings
	articles    []Article
	newsletters []Newsletter
	social      []SocialPost
	activity    []ActivityLog
	activitySeq int64

	keepActivity int
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{keepActivity: DefaultKeepActivity}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) ListSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSchedules(m.schedules, false), nil
}

func (m *memoryStore) ListEnabledSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSchedules(m.schedules, true), nil
}

func cloneSchedules(in []schedule.Schedule, enabledOnly bool) []schedule.Schedule {
	var out []schedule.Schedule
	for _, s := range in {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, copySchedule(s))
	}
	return out
}

func copySchedule(s schedule.Schedule) schedule.Schedule {
	if s.LastRun != nil {
		t := *s.LastRun
		s.LastRun = &t
	}
	return s
}

func (m *memoryStore) GetSchedule(ctx context.Context, id string) (schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.schedules {
		if s.ID == id {
			return copySchedule(s), nil
		}
	}
	return schedule.Schedule{}, ErrNotFound
}

func (m *memoryStore) CreateSchedule(ctx context.Context, s schedule.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = append(m.schedules, copySchedule(s))
	return nil
}

func (m *memoryStore) UpdateSchedule(ctx context.Context, s schedule.Schedule) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		if m.schedules[i].ID == s.ID {
			s.CreatedAt = m.schedules[i].CreatedAt
			m.schedules[i] = copySchedule(s)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) RecordRun(ctx context.Context, id string, at time.Time) (schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		s := &m.schedules[i]
		if s.ID != id {
			continue
		}
		next, err := schedule.NextRun(s.Frequency, s.Time, at)
		if err != nil {
			return schedule.Schedule{}, err
		}
		last := at
		s.LastRun = &last
		s.NextRun = next
		s.UpdatedAt = at
		return copySchedule(*s), nil
	}
	return schedule.Schedule{}, ErrNotFound
}

func (m *memoryStore) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		if m.schedules[i].ID == id {
			m.schedules = append(m.schedules[:i], m.schedules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) GetSettings(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return DefaultSettings(), nil
	}
	return m.settings.clone(), nil
}

func (m *memoryStore) SaveSettings(ctx context.Context, s Settings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	s = s.clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *memoryStore) ListArticles(ctx context.Context) ([]Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Article(nil), m.articles...), nil
}

func (m *memoryStore) ListSelectedArticles(ctx context.Context) ([]Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Article
	for _, a := range m.articles {
		if a.Selected {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) GetArticle(ctx context.Context, id string) (Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return Article{}, ErrNotFound
}

func (m *memoryStore) CreateArticle(ctx context.Context, a Article) (Article, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = append(m.articles, a)
	return a, nil
}

func (m *memoryStore) SetArticleSelected(ctx context.Context, id string, selected bool) (Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.articles {
		if m.articles[i].ID == id {
			m.articles[i].Selected = selected
			return m.articles[i], nil
		}
	}
	return Article{}, ErrNotFound
}

func (m *memoryStore) ClearArticles(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = nil
	return nil
}

func (m *memoryStore) CreateNewsletter(ctx context.Context, n Newsletter) (Newsletter, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = StatusDraft
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newsletters = append(m.newsletters, n)
	return n, nil
}

func (m *memoryStore) GetNewsletter(ctx context.Context, id string) (Newsletter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.newsletters {
		if n.ID == id {
			return n, nil
		}
	}
	return Newsletter{}, ErrNotFound
}

func (m *memoryStore) ListNewsletters(ctx context.Context, limit int) ([]Newsletter, error) {
	m.mu.Lock()
	out := append([]Newsletter(nil), m.newsletters...)
	m.mu.Unlock()

	// Newest first; stable keeps reverse insertion order on ties.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) UpdateNewsletter(ctx context.Context, n Newsletter) error {
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.newsletters {
		if m.newsletters[i].ID == n.ID {
			n.CreatedAt = m.newsletters[i].CreatedAt
			m.newsletters[i] = n
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) NextIssueNumber(ctx context.Context, start int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.newsletters) == 0 {
		if start <= 0 {
			start = 1
		}
		return start, nil
	}
	latest := 0
	for _, n := range m.newsletters {
		if n.IssueNumber > latest {
			latest = n.IssueNumber
		}
	}
	return latest + 1, nil
}

func (m *memoryStore) CreateSocialPost(ctx context.Context, p SocialPost) (SocialPost, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.social = append(m.social, p)
	return p, nil
}

func (m *memoryStore) ListSocialPosts(ctx context.Context, newsletterID string) ([]SocialPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SocialPost
	for _, p := range m.social {
		if p.NewsletterID == newsletterID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateActivityLog(ctx context.Context, e ActivityLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Type == "" {
		e.Type = ActivityInfo
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activitySeq++
	e.ID = m.activitySeq
	m.activity = append(m.activity, e)
	if m.keepActivity > 0 && len(m.activity) > m.keepActivity {
		m.activity = append([]ActivityLog(nil), m.activity[len(m.activity)-m.keepActivity:]...)
	}
	return nil
}

func (m *memoryStore) ListActivityLogs(ctx context.Context, limit int) ([]ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.activity)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ActivityLog, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.activity[i])
	}
	return out, nil
}
