package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the periodic batch refresh.
type Scheduler struct {
	cron      *cron.Cron
	analytics *Analytics
	log       *logrus.Logger
}

func NewScheduler(analytics *Analytics, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		analytics: analytics,
		log:       log,
	}
}

// Register adds the refresh job under the given six-field cron spec.
func (s *Scheduler) Register(ctx context.Context, refreshCron string) error {
	_, err := s.cron.AddFunc(refreshCron, func() {
		s.log.Info("scheduled batch refresh starting")
		s.analytics.RefreshAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; a refresh already in flight finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
