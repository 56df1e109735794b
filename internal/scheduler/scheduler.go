// Package scheduler runs the periodic crawl and the daily retention job
// inside the server process.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Jobs are the callbacks the scheduler drives.
type Jobs struct {
	Crawl     func(ctx context.Context) error
	Retention func(ctx context.Context) error
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New builds a scheduler with the crawl job on crawlSpec and the retention
// job at 04:10 every day.
func New(crawlSpec string, jobs Jobs, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	c := cron.New()

	if jobs.Crawl != nil {
		if _, err := c.AddFunc(crawlSpec, func() {
			if err := jobs.Crawl(context.Background()); err != nil {
				log.Error("scheduled crawl failed", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if jobs.Retention != nil {
		if _, err := c.AddFunc("10 4 * * *", func() {
			if err := jobs.Retention(context.Background()); err != nil {
				log.Error("scheduled retention failed", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
