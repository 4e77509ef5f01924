package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Scheduler runs a single job on a fixed interval. The first run happens one
// interval after Start; callers that need an immediate run do it themselves.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	job       func()
	log       logrus.FieldLogger
}

// New creates a new Scheduler.
func New(interval time.Duration, job func(), log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		job:       job,
		log:       log,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.job)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.scheduler.StartAsync()
	s.log.WithField("interval", s.interval).Debug("scheduler started")
	return nil
}

// Stop stops the scheduler and cancels any future runs. A run in progress
// is not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
		s.log.Debug("scheduler stopped")
	}
}
