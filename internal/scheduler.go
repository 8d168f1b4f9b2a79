package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the daily new-video check on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	logger   *Logger
}

// NewScheduler creates a scheduler in the configured timezone
func NewScheduler(pipeline *Pipeline, timezone string, logger *Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", timezone, err)
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		pipeline: pipeline,
		logger:   logger,
	}, nil
}

// Start registers the check job and begins the schedule
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.Infof("running scheduled new-video check")
		s.pipeline.CheckNewVideos(context.Background())
	})
	if err != nil {
		return fmt.Errorf("registering check schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
