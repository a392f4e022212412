package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stockmeta/internal/queue"
)

const DefaultCleanupSchedule = "0 0 3 * * *"

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	schedule string
	log      zerolog.Logger
}

func NewScheduler(queue Enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		queue:    queue,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("retention purge scheduled")
	return nil
}

// Stop halts the scheduler and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskCleanup}); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
	}
}
