package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"clipflow/internal/domain"
	"clipflow/internal/store"
)

// TemplateService materializes due recurring templates into concrete pending
// jobs and advances each template's next firing.
type TemplateService struct {
	jobs      store.JobStore
	templates store.TemplateStore
	published store.PublishedStore
	interval  time.Duration
	now       func() time.Time
	stop      chan struct{}
}

func NewTemplateService(jobs store.JobStore, templates store.TemplateStore, published store.PublishedStore, interval time.Duration) *TemplateService {
	return &TemplateService{
		jobs:      jobs,
		templates: templates,
		published: published,
		interval:  interval,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

func (s *TemplateService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("template service started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

func (s *TemplateService) Stop() {
	close(s.stop)
}

func (s *TemplateService) tick(ctx context.Context, now time.Time) {
	due, err := s.templates.FindDueTemplates(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to query due templates")
		return
	}

	for _, tpl := range due {
		if err := s.materialize(ctx, tpl, now); err != nil {
			log.Error().Err(err).Str("template_id", tpl.ID).Msg("failed to materialize template")
		}
	}
}

func (s *TemplateService) materialize(ctx context.Context, tpl domain.JobTemplate, now time.Time) error {
	sched, err := cron.ParseStandard(tpl.CronExpr)
	if err != nil {
		log.Error().Err(err).Str("cron_expr", tpl.CronExpr).Msg("invalid cron expression")
		return err
	}

	nextRun := sched.Next(now)

	// A source that already published for this owner is not offered again.
	// The firing is still consumed so the template does not re-fire every tick.
	if done, err := s.published.ExistsForVideo(ctx, tpl.OwnerID, tpl.VideoPath); err != nil {
		return err
	} else if done {
		log.Debug().Str("template_id", tpl.ID).Str("video_path", tpl.VideoPath).Msg("source already published, skipping")
		return s.templates.MarkTemplateRun(ctx, tpl.ID, now, nextRun)
	}

	job := domain.Job{
		OwnerID:       tpl.OwnerID,
		VideoPath:     tpl.VideoPath,
		ScheduledTime: tpl.NextRun,
	}
	if tpl.Title != nil && *tpl.Title != "" {
		// Title and description are set as a pair; a template with a fixed
		// title skips synthesis entirely.
		desc := "Scheduled upload."
		job.Title = tpl.Title
		job.Description = &desc
	}

	jobID, err := s.jobs.Create(ctx, job)
	if err != nil {
		return err
	}

	if err := s.templates.MarkTemplateRun(ctx, tpl.ID, now, nextRun); err != nil {
		return err
	}

	log.Info().
		Str("template_id", tpl.ID).
		Str("job_id", jobID).
		Time("next_run", nextRun).
		Msg("recurring job materialized")
	return nil
}

// ValidateCronExpression validates a template cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next firing for a cron expression.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
