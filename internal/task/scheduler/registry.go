package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	logx "newsbot/pkg/logx"
)

var ErrNotRegistered = errors.New("no job registered for id")

const activityTimeout = 5 * time.Second

// Register creates or replaces the recurring entry for sched.ID. Any
// previous entry for the same id is removed first, so an id never has two
// live entries.
func (s *Service) Register(ctx context.Context, sched schedule.Schedule) error {
	id := strings.TrimSpace(sched.ID)
	if id == "" {
		return errors.New("schedule id required")
	}
	spec, err := schedule.CronSpec(sched.Frequency, sched.Time)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.removeLocked(id)
	d := &entryDef{
		id:   id,
		name: sched.Name,
		kind: kindSchedule,
		spec: spec,
		job: func(ctx context.Context) error {
			if s.run == nil {
				return errors.New("no schedule runner configured")
			}
			return s.run(ctx, id)
		},
	}
	s.defs[id] = d
	s.addCronLocked(d)
	next := s.previewNextRunsLocked(spec, 3)
	s.mu.Unlock()

	fields := []logx.Field{logx.String("id", id), logx.String("name", sched.Name), logx.String("spec", spec)}
	if next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)

	s.record(ctx, storage.ActivityLog{
		Message: fmt.Sprintf("Scheduled job registered: %s", sched.Name),
		Details: fmt.Sprintf("%s at %s", sched.Frequency, sched.Time),
		Type:    storage.ActivityInfo,
	})
	return nil
}

// Unregister stops and removes the entry for id. Unknown ids are a no-op.
// A run that is already queued or executing is not interrupted.
func (s *Service) Unregister(id string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(id))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule unregistered", logx.String("id", id))
	}
	return removed
}

// AddCron registers an internal entry under name (which doubles as its id).
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &entryDef{id: name, name: name, kind: kindInternal, spec: spec, timeout: timeout, job: job}
	s.defs[name] = d
	s.addCronLocked(d)
	s.log.Debug("internal job registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// Has reports whether an entry exists for id.
func (s *Service) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[id]
	return ok
}

// Trigger fires the entry for id immediately, as if its cron time had come.
func (s *Service) Trigger(id string) error {
	s.mu.Lock()
	_, ok := s.defs[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotRegistered
	}
	return s.fire(id)
}

// fire enqueues the job for id. It runs on the cron goroutine, so it only
// hands work to the engine.
func (s *Service) fire(id string) error {
	firedAt := s.now()
	s.mu.Lock()
	d, ok := s.defs[id]
	var t engine.Task
	if ok {
		job := d.job
		t = engine.Task{
			Name:    taskName(d),
			Key:     overlapKey(d, firedAt),
			Timeout: d.timeout,
			Overlap: engine.OverlapSkipIfRunning,
			Run: func(ctx context.Context) error {
				return job(withFiredAt(ctx, firedAt))
			},
		}
	}
	eng := s.engine
	s.mu.Unlock()

	if !ok {
		return ErrNotRegistered
	}
	if eng == nil {
		return engine.ErrStopped
	}
	err := eng.Enqueue(t)
	if err != nil {
		s.reportEnqueueError(id, t.Name, err)
	}
	return err
}

// removeLocked drops id from cron and the definitions. Call with s.mu held.
func (s *Service) removeLocked(id string) bool {
	d, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, id)
	return true
}

func (s *Service) record(ctx context.Context, e storage.ActivityLog) {
	if s.activity == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, activityTimeout)
	defer cancel()
	if err := s.activity.CreateActivityLog(ctx, e); err != nil {
		s.log.Warn("activity log write failed", logx.String("message", e.Message), logx.Err(err))
	}
}

// overlapKey is the schedule id for schedules. Internal ticks are keyed per
// minute: a tick waiting behind a long run must not swallow the next
// minute's tick, while two fires within one minute still collapse.
func overlapKey(d *entryDef, firedAt time.Time) string {
	if d.kind == kindSchedule {
		return d.id
	}
	return d.id + "@" + firedAt.UTC().Format("2006-01-02T15:04")
}

func taskName(d *entryDef) string {
	if d.kind == kindSchedule {
		return "schedule:" + d.name
	}
	return d.name
}
