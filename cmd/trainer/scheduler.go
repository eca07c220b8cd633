package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// retrainTimeout bounds a single scheduled run.
const retrainTimeout = 10 * time.Minute

// MinInterval is the shortest accepted retrain interval.
const MinInterval = time.Minute

// Scheduler periodically runs a retrain job.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	job       func(ctx context.Context) error
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler running job every interval. The first
// run starts immediately.
func NewScheduler(interval time.Duration, job func(ctx context.Context) error, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		interval:  interval,
		job:       job,
		logger:    logger,
	}
}

// Start schedules the job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval < MinInterval {
		return fmt.Errorf("retrain interval %s is below the minimum of %s", s.interval, MinInterval)
	}

	_, err := s.scheduler.Every(s.interval).Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info("retrain scheduled", "every", s.interval)
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), retrainTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("retrain started")
	if err := s.job(ctx); err != nil {
		s.logger.Error("retrain finished with errors", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("retrain completed", "duration", time.Since(start))
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
