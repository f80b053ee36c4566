package automation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"newsbot/internal/feed"
	"newsbot/internal/generate"
	"newsbot/internal/newsletter"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

type fakeFetcher struct {
	mu    sync.Mutex
	items []feed.Item
	err   error
	urls  []string

	// during runs inside Fetch, before the items are returned.
	during func()
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]feed.Item, error) {
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func feedItems(n int) []feed.Item {
	out := make([]feed.Item, n)
	for i := range out {
		out[i] = feed.Item{Title: fmt.Sprintf("Story %d", i+1), Content: "body", Source: "Wire", URL: fmt.Sprintf("https://example.com/%d", i+1)}
	}
	return out
}

type fakeGenerator struct{ err error }

func (g fakeGenerator) Generate(context.Context, generate.Request) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "Three stories you should read today", nil
}

func (g fakeGenerator) SocialPost(context.Context, generate.SocialRequest) (string, error) {
	return "short post", g.err
}

type fakeGenerators struct{ g fakeGenerator }

func (f fakeGenerators) For(_, apiKey string) (generate.Generator, error) {
	if apiKey == "" {
		return nil, generate.ErrNoAPIKey
	}
	return f.g, nil
}

type fakeRegistry struct {
	mu           sync.Mutex
	registered   map[string]schedule.Schedule
	unregistered []string
	crons        map[string]string
	triggered    []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{registered: map[string]schedule.Schedule{}, crons: map[string]string{}}
}

func (r *fakeRegistry) Register(_ context.Context, s schedule.Schedule) error {
	if _, err := schedule.CronSpec(s.Frequency, s.Time); err != nil {
		return err
	}
	r.mu.Lock()
	r.registered[s.ID] = s
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, id)
	_, ok := r.registered[id]
	delete(r.registered, id)
	return ok
}

func (r *fakeRegistry) AddCron(name, spec string, _ time.Duration, _ func(context.Context) error) error {
	r.mu.Lock()
	r.crons[name] = spec
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistry) Trigger(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered[id]; !ok {
		return scheduler.ErrNotRegistered
	}
	r.triggered = append(r.triggered, id)
	return nil
}

func (r *fakeRegistry) Location() *time.Location { return time.UTC }

func (r *fakeRegistry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registered[id]
	return ok
}

type fakeEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
}

func (e *fakeEngine) Enqueue(t engine.Task) error {
	e.mu.Lock()
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
	return nil
}

// harness wires a runner and service around an in-memory store with a
// fixed clock.
type harness struct {
	store    storage.Store
	fetcher  *fakeFetcher
	registry *fakeRegistry
	engine   *fakeEngine
	runner   *Runner
	service  *Service
	now      time.Time
}

func newHarness(t *testing.T, now time.Time, gen fakeGenerator) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemory(),
		fetcher:  &fakeFetcher{},
		registry: newFakeRegistry(),
		engine:   &fakeEngine{},
		now:      now,
	}
	clock := func() time.Time { return h.now }
	asm := newsletter.New(newsletter.Config{PublicBaseURL: "http://localhost:8080"}, newsletter.Deps{
		Store:      h.store,
		Generators: fakeGenerators{g: gen},
		Now:        clock,
	}, logx.Nop())
	h.runner = NewRunner(RunnerDeps{
		Store:    h.store,
		Fetcher:  h.fetcher,
		Assembly: asm,
		Now:      clock,
		Location: func() *time.Location { return time.UTC },
	}, logx.Nop())
	h.service = NewService(ServiceDeps{
		Store:       h.store,
		Runner:      h.runner,
		Registry:    h.registry,
		Engine:      h.engine,
		Fetcher:     h.fetcher,
		Newsletters: asm,
		Now:         clock,
	}, logx.Nop())
	return h
}

func (h *harness) saveSettings(t *testing.T, mutate func(*storage.Settings)) {
	t.Helper()
	st := storage.DefaultSettings()
	mutate(&st)
	if err := h.store.SaveSettings(context.Background(), st); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
}

func (h *harness) newsletters(t *testing.T) []storage.Newsletter {
	t.Helper()
	list, err := h.store.ListNewsletters(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListNewsletters: %v", err)
	}
	return list
}

func (h *harness) articles(t *testing.T) []storage.Article {
	t.Helper()
	list, err := h.store.ListArticles(context.Background())
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	return list
}

func (h *harness) activity(t *testing.T) []storage.ActivityLog {
	t.Helper()
	list, err := h.store.ListActivityLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListActivityLogs: %v", err)
	}
	return list
}
