package backup

import (
	"context"
	"sync"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/jonboulle/clockwork"
)

// Scheduler runs a cycle at startup and then once per interval. A tick that
// arrives while a cycle is still running is skipped.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   logging.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler for runner
func NewScheduler(runner *Runner, interval time.Duration, clock clockwork.Clock, logger logging.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if interval <= 0 {
		interval = utils.DefaultBackupInterval
	}
	return &Scheduler{runner: runner, interval: interval, clock: clock, logger: logger}
}

// Run blocks until ctx is done, then waits for the running cycle to stop
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", logging.F("interval", s.interval.String()))
	s.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			s.wg.Wait()
			return nil
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	s.runner.State().SetNextBackup(s.clock.Now().Add(s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runner.RunCycle(ctx); err != nil && utils.HasCode(err, utils.ErrCodeCycleInProgress) {
			s.logger.Info("Previous cycle still running, tick skipped")
		}
	}()
}
