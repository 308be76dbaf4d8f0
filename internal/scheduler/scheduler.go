package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer marks overdue device reading sessions EXPIRED.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	expirer  Expirer
	schedule string
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. schedule accepts the
// standard 5-field cron syntax as well as descriptors such as "@every 1m".
func NewScheduler(schedule string, expirer Expirer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 1m"
	}

	return &Scheduler{
		cron:     cron.New(),
		expirer:  expirer,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("expiry_schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.expireReadingSessions); err != nil {
		return fmt.Errorf("schedule reading session expiry: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) expireReadingSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.expirer.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("failed to expire reading sessions", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("reading sessions expired", zap.Int("count", n))
	}
}
