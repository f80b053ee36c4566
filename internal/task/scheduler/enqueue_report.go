package scheduler

import (
	"errors"
	"time"

	"newsbot/internal/task/engine"
	logx "newsbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(id, name string, err error) {
	if err == nil {
		return
	}
	// A schedule still running from its previous trigger is normal.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Info("trigger skipped: previous run still active", logx.String("id", id), logx.String("task", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	s.log.Warn("trigger failed to enqueue", logx.String("id", id), logx.String("task", name), logx.Err(err))
}
