// Package scheduler launches generation runs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/config"
	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

// RunStarter launches background runs.
type RunStarter interface {
	Start(req entities.RunRequest) (*service.Run, error)
}

// Defaults fill the fields a job leaves empty.
type Defaults struct {
	APIKey     string
	Count      int
	OutputPath string
}

// Scheduler triggers the configured jobs.
type Scheduler struct {
	runs     RunStarter
	jobs     []config.ScheduledJob
	defaults Defaults
	location *time.Location
	logger   *zap.Logger
}

// New creates a scheduler. Jobs are evaluated in UTC.
func New(runs RunStarter, jobs []config.ScheduledJob, defaults Defaults, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runs:     runs,
		jobs:     jobs,
		defaults: defaults,
		location: time.UTC,
		logger:   logger,
	}
}

// Start registers every job and blocks until ctx is done. It fails fast on
// an unparsable cron expression or a job without a subject.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.logger.Info("no scheduled jobs configured")
		return nil
	}

	c := cron.New(cron.WithLocation(s.location))

	for i, job := range s.jobs {
		if job.Subject == "" {
			return fmt.Errorf("job %d: subject is required", i+1)
		}

		if _, err := c.AddFunc(job.Spec, func() { s.trigger(job) }); err != nil {
			return fmt.Errorf("job %d (%q): %w", i+1, job.Spec, err)
		}
	}

	c.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")

	return nil
}

func (s *Scheduler) request(job config.ScheduledJob) entities.RunRequest {
	req := entities.RunRequest{
		Subject:          job.Subject,
		Topic:            job.Topic,
		Count:            job.Count,
		ReferencePath:    job.ReferencePath,
		SkipVerification: job.SkipVerification,
		OutputPath:       job.Output,
		WriteMode:        entities.WriteAppend,
		APIKey:           s.defaults.APIKey,
	}
	if req.Count <= 0 {
		req.Count = s.defaults.Count
	}
	if req.OutputPath == "" {
		req.OutputPath = s.defaults.OutputPath
	}
	return req
}

func (s *Scheduler) trigger(job config.ScheduledJob) {
	log := s.logger.With(zap.String("spec", job.Spec), zap.String("subject", job.Subject))

	run, err := s.runs.Start(s.request(job))
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		log.Warn("scheduled run skipped, another run is active")
		return
	case err != nil:
		log.Error("failed to start scheduled run", zap.Error(err))
		return
	}

	log.Info("scheduled run started", zap.String("run_id", run.ID().String()))
}
