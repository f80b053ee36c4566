package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"newsbot/internal/automation"
	"newsbot/internal/feed"
	"newsbot/internal/generate"
	"newsbot/internal/newsletter"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) ([]feed.Item, error) {
	return []feed.Item{{Title: "Story", Content: "body", Source: "Wire", URL: "https://example.com/1"}}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, generate.Request) (string, error) {
	return "today in brief", nil
}

func (stubGenerator) SocialPost(context.Context, generate.SocialRequest) (string, error) {
	return "post", nil
}

type stubGenerators struct{}

func (stubGenerators) For(_, apiKey string) (generate.Generator, error) {
	if apiKey == "" {
		return nil, generate.ErrNoAPIKey
	}
	return stubGenerator{}, nil
}

type testServer struct {
	store  storage.Store
	router *gin.Engine
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemory()
	eng := engine.New(engine.Config{}, logx.Nop(), nil)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})

	asm := newsletter.New(newsletter.Config{PublicBaseURL: "http://localhost:8080"}, newsletter.Deps{
		Store:      store,
		Generators: stubGenerators{},
	}, logx.Nop())

	var runner *automation.Runner
	reg := scheduler.New(scheduler.Config{Timezone: "UTC"}, eng, func(ctx context.Context, id string) error {
		return runner.RunByID(ctx, id)
	}, store, logx.Nop())
	runner = automation.NewRunner(automation.RunnerDeps{
		Store:    store,
		Fetcher:  stubFetcher{},
		Assembly: asm,
		Location: reg.Location,
	}, logx.Nop())
	svc := automation.NewService(automation.ServiceDeps{
		Store:       store,
		Runner:      runner,
		Registry:    reg,
		Engine:      eng,
		Fetcher:     stubFetcher{},
		Newsletters: asm,
	}, logx.Nop())

	h := NewHandler(svc, reg, logx.Nop())
	return &testServer{store: store, router: NewRouter(cfg, h, nil, logx.Nop())}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateScheduleStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "valid",
			body: map[string]any{"name": "Morning", "frequency": "daily", "time": "09:00", "sourceUrl": "https://example.com/feed", "enabled": true},
			want: http.StatusCreated,
		},
		{
			name: "malformed time",
			body: map[string]any{"name": "Morning", "frequency": "daily", "time": "9am", "sourceUrl": "https://example.com/feed"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown frequency",
			body: map[string]any{"name": "Morning", "frequency": "hourly", "time": "09:00", "sourceUrl": "https://example.com/feed"},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, Config{})
			w := s.do(t, http.MethodPost, "/api/schedules", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})

	w := s.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"name": "Weekly", "frequency": "weekly", "time": "08:30", "sourceUrl": "https://example.com/feed", "enabled": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	created := decode[schedule.Schedule](t, w)
	if created.ID == "" || created.NextRun.IsZero() {
		t.Fatalf("created = %+v", created)
	}

	w = s.do(t, http.MethodPatch, "/api/schedules/"+created.ID, map[string]any{"time": "10:00"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", w.Code, w.Body.String())
	}
	if got := decode[schedule.Schedule](t, w); got.Time != "10:00" {
		t.Fatalf("time = %q", got.Time)
	}

	if w = s.do(t, http.MethodPost, "/api/schedules/"+created.ID+"/run", nil); w.Code != http.StatusAccepted {
		t.Fatalf("run status = %d (%s)", w.Code, w.Body.String())
	}

	if w = s.do(t, http.MethodDelete, "/api/schedules/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/api/schedules/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

func TestSettingsAreRedacted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})

	in := storage.DefaultSettings()
	in.GenerationAPIKey = "sk-secret-1234"
	w := s.do(t, http.MethodPut, "/api/settings", in)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d (%s)", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "sk-secret") {
		t.Fatalf("secret leaked: %s", w.Body.String())
	}
	got := decode[storage.Settings](t, s.do(t, http.MethodGet, "/api/settings", nil))
	if got.GenerationAPIKey != "****1234" {
		t.Fatalf("key = %q", got.GenerationAPIKey)
	}

	// Sending the masked value back keeps the stored secret.
	got.DailyScheduleTime = "07:15"
	if w = s.do(t, http.MethodPut, "/api/settings", got); w.Code != http.StatusOK {
		t.Fatalf("resave status = %d", w.Code)
	}
	stored, err := s.store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if stored.GenerationAPIKey != "sk-secret-1234" || stored.DailyScheduleTime != "07:15" {
		t.Fatalf("stored = %+v", stored)
	}

	bad := storage.DefaultSettings()
	bad.DailyScheduleTime = "25:00"
	if w = s.do(t, http.MethodPut, "/api/settings", bad); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d", w.Code)
	}
}

func TestApprovalLinks(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})
	n, err := s.store.CreateNewsletter(context.Background(), storage.Newsletter{
		IssueNumber:   1,
		Title:         "Newsletter #1",
		Content:       "hello",
		Status:        storage.StatusGenerated,
		ApprovalToken: "tok",
	})
	if err != nil {
		t.Fatalf("CreateNewsletter: %v", err)
	}

	if w := s.do(t, http.MethodGet, "/api/newsletters/"+n.ID+"/approve?token=nope", nil); w.Code != http.StatusForbidden {
		t.Fatalf("bad token status = %d", w.Code)
	}
	w := s.do(t, http.MethodGet, "/api/newsletters/"+n.ID+"/approve?token=tok", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d (%s)", w.Code, w.Body.String())
	}
	if body := decode[map[string]any](t, w); body["status"] != string(storage.StatusApproved) {
		t.Fatalf("body = %v", body)
	}
	if w = s.do(t, http.MethodGet, "/api/newsletters/"+n.ID+"/reject?token=tok", nil); w.Code != http.StatusForbidden && w.Code != http.StatusConflict {
		t.Fatalf("reject after approve status = %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/api/newsletters/missing/approve?token=tok", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing newsletter status = %d", w.Code)
	}
}

func TestGenerateWithoutSelection(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})
	st := storage.DefaultSettings()
	st.GenerationAPIKey = "key"
	if err := s.store.SaveSettings(context.Background(), st); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if w := s.do(t, http.MethodPost, "/api/newsletters/generate", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
}

func TestPprofRequiresToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{Pprof: PprofConfig{Enabled: true, Token: "sekret"}})

	if w := s.do(t, http.MethodGet, "/debug/pprof/", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/debug/pprof/?token=sekret", nil); w.Code != http.StatusOK {
		t.Fatalf("token status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":             "/debug/pprof/",
		"debug":        "/debug/",
		"/x/pprof":     "/x/pprof/",
		" /x/pprof/  ": "/x/pprof/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
