package server

import (
	"context"

	"github.com/robfig/cron/v3"
)

// StartScheduler regenerates the listing on the configured cron schedule.
func (s *Server) StartScheduler(ctx context.Context) error {
	if s.config.CronSchedule == "" {
		s.log.Warn("no cron schedule configured")
		return nil
	}
	s.cron = cron.New(cron.WithLogger(cron.PrintfLogger(s.log)))
	_, err := s.cron.AddFunc(s.config.CronSchedule, func() {
		if _, err := s.Regenerate(ctx, "cron"); err != nil {
			s.log.Errorf("scheduled generation failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.log.Infof("scheduling generation (%s)", s.config.CronSchedule)
	s.cron.Start()
	return nil
}

// StopScheduler stops the scheduler and waits for a running generation.
func (s *Server) StopScheduler() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
