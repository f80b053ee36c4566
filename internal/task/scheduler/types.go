package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	logx "newsbot/pkg/logx"
)

// Config controls the trigger side of scheduling.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

// RunFunc executes the schedule identified by id.
type RunFunc func(ctx context.Context, id string) error

// Enqueuer is the part of the task engine the registry needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

// ActivitySink receives the user-visible registration entries.
type ActivitySink interface {
	CreateActivityLog(ctx context.Context, e storage.ActivityLog) error
}

type entryKind string

const (
	kindSchedule entryKind = "schedule"
	kindInternal entryKind = "internal"
)

type entryDef struct {
	id      string
	name    string
	kind    entryKind
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log      logx.Logger
	cfg      Config
	loc      *time.Location
	engine   Enqueuer
	run      RunFunc
	activity ActivitySink
	now      func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*entryDef

	// Enqueue warning throttling, keyed by entry id.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// EntryInfo describes one registered cron entry.
type EntryInfo struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind string    `json:"kind"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// Snapshot is a diagnostic view of the registry and its executor.
type Snapshot struct {
	Running  bool             `json:"running"`
	Timezone string           `json:"timezone"`
	Entries  []EntryInfo      `json:"entries"`
	Engine   *engine.Snapshot `json:"engine,omitempty"`
}
