package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "newsbot/pkg/logx"
)

// New creates a stopped registry. run executes schedule jobs by id; activity
// may be nil.
func New(cfg Config, eng Enqueuer, run RunFunc, activity ActivitySink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		engine:   eng,
		run:      run,
		activity: activity,
		now:      time.Now,
		// SecondOptional accepts both 5-field and 6-field (with seconds) specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:        map[string]*entryDef{},
		lastEnqWarn: map[string]time.Time{},
	}
}

// Apply swaps the config. A timezone change restarts cron and re-adds every
// entry so fire times follow the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if oldTZ == newTZ {
		return
	}
	if s.c == nil {
		s.loc = nil
		return
	}
	s.restartLocked()
}

// Location returns the timezone cron entries are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// Start starts cron and adds every entry registered so far. It is
// idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("entries", len(s.defs)))
}

// Stop stops cron triggering. Definitions are kept so a later Start
// resumes them. Jobs already handed to the engine are not affected.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// restartLocked does not wait for the old cron to drain: an in-flight
// fire needs s.mu.
func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		d.entryID = 0
		s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("entries", len(s.defs)))
}

// addCronLocked adds d to the running cron. Call with s.mu held.
func (s *Service) addCronLocked(d *entryDef) {
	if s.c == nil {
		return
	}
	id := d.id
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() { s.fire(id) }))
	if err != nil {
		s.log.Error("cron entry rejected", logx.String("id", d.id), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked renders the next n fire times of spec for debug
// logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04"))
	}
	return b.String()
}
