package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"newsbot/internal/automation"
	"newsbot/internal/eventbus"
	"newsbot/internal/task/engine"
)

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New()

	m.Observe(eventbus.Event{Type: eventbus.TaskStarted, Data: engine.TaskEvent{QueueDelay: time.Millisecond}})
	if got := testutil.ToFloat64(m.TasksRunning); got != 1 {
		t.Fatalf("running = %v", got)
	}
	m.Observe(eventbus.Event{Type: eventbus.TaskFailed, Data: engine.TaskEvent{Duration: time.Second}})
	m.Observe(eventbus.Event{Type: eventbus.TaskSkipped})
	if got := testutil.ToFloat64(m.TasksRunning); got != 0 {
		t.Fatalf("running = %v", got)
	}
	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed = %v", got)
	}
	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}

	m.Observe(eventbus.Event{Type: eventbus.RunCompleted, Data: automation.RunResult{
		Kind:     automation.KindSchedule,
		Outcome:  automation.OutcomeFailed,
		Articles: 0,
		Err:      &automation.FetchError{URL: "https://example.com", Err: errors.New("boom")},
	}})
	m.Observe(eventbus.Event{Type: eventbus.RunCompleted, Data: automation.RunResult{
		Kind:     automation.KindDaily,
		Outcome:  automation.OutcomeSucceeded,
		Articles: 4,
	}})
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("schedule", "failed", "fetch")); got != 1 {
		t.Fatalf("failed fetch runs = %v", got)
	}
	if got := testutil.ToFloat64(m.ArticlesStored.WithLabelValues("daily")); got != 4 {
		t.Fatalf("articles = %v", got)
	}

	m.Observe(eventbus.Event{Type: eventbus.NewsletterPublished})
	if got := testutil.ToFloat64(m.NewslettersTotal.WithLabelValues(eventbus.NewsletterPublished)); got != 1 {
		t.Fatalf("published = %v", got)
	}
}

func TestHandlerServesText(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(eventbus.Event{Type: eventbus.ConfigReloaded})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "newsbot_config_reloads_total 1") {
		t.Fatalf("body missing reload counter:\n%s", body)
	}
}
