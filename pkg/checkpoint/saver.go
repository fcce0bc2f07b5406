package checkpoint

import (
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

// Saver keeps a checkpoint in step with a running probe. It is meant to be
// registered as a prober observer, so events arrive one at a time.
type Saver struct {
	mgr      *Manager
	cp       *Checkpoint
	interval int
	pending  int
	logger   logger.Logger
}

// NewSaver persists cp every interval attempts
func NewSaver(mgr *Manager, cp *Checkpoint, interval int, log logger.Logger) *Saver {
	if interval < 1 {
		interval = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Saver{mgr: mgr, cp: cp, interval: interval, logger: log}
}

// OnEvent records the attempt and saves when the interval is reached
func (s *Saver) OnEvent(e models.Event) {
	s.cp.Stats.Record(e)
	if e.State.Downloaded() {
		s.cp.Findings[e.Code] = e.File
	}

	s.pending++
	if s.pending < s.interval {
		return
	}
	s.pending = 0
	if err := s.mgr.Save(s.cp); err != nil {
		s.logger.WithError(err).Warn("Failed to save checkpoint")
	}
}

// OnFinish removes the checkpoint after a complete run and keeps it
// otherwise
func (s *Saver) OnFinish(stats models.Stats, runErr error) {
	s.cp.Stats = stats
	if runErr == nil && s.cp.Remaining() == 0 {
		if err := s.mgr.Delete(); err != nil {
			s.logger.WithError(err).Warn("Failed to delete checkpoint")
		}
		return
	}
	if err := s.mgr.Save(s.cp); err != nil {
		s.logger.WithError(err).Error("Failed to save checkpoint")
		return
	}
	s.logger.InfoWithFields("Checkpoint kept for resume", map[string]interface{}{
		"attempts": stats.Attempts,
		"path":     s.mgr.Path(),
	})
}

