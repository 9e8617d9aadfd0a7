package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"clipflow/internal/domain"
	"clipflow/internal/publish"
	"clipflow/internal/store"
)

// JobPublisher is what the publish loop needs from the publisher.
type JobPublisher interface {
	Publish(ctx context.Context, ownerID, videoPath, title, description string, thumbnailPath *string) (publish.Result, error)
}

// PublishOptions are the due-window and cadence knobs. Zero values take the
// documented defaults.
type PublishOptions struct {
	EarlyBound time.Duration // publish at most this early (default 60s)
	LateBound  time.Duration // publish at most this late (default 300s)
	Interval   time.Duration // tick cadence (default 30s)
	Workers    int           // bounded per-tick concurrency (default 1, sequential)
	ReclaimAge time.Duration // fail processing jobs older than this (default 15m)
}

func (o *PublishOptions) defaults() {
	if o.EarlyBound <= 0 {
		o.EarlyBound = time.Minute
	}
	if o.LateBound <= 0 {
		o.LateBound = 5 * time.Minute
	}
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.ReclaimAge <= 0 {
		o.ReclaimAge = 15 * time.Minute
	}
}

// PublishService moves due jobs through pending -> processing ->
// completed|failed. A job is marked processing before the blocking upload
// begins, which is what guarantees at-most-one publish across concurrent
// ticks and restarts.
type PublishService struct {
	jobs store.JobStore
	pub  JobPublisher
	opts PublishOptions
	now  func() time.Time
	stop chan struct{}
}

func NewPublishService(jobs store.JobStore, pub JobPublisher, opts PublishOptions) *PublishService {
	opts.defaults()
	return &PublishService{
		jobs: jobs,
		pub:  pub,
		opts: opts,
		now:  time.Now,
		stop: make(chan struct{}),
	}
}

func (s *PublishService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.opts.Interval).Int("workers", s.opts.Workers).Msg("publish service started")

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

func (s *PublishService) Stop() {
	close(s.stop)
}

func (s *PublishService) tick(ctx context.Context, now time.Time) {
	if n, err := s.jobs.FailStaleProcessing(ctx, s.opts.ReclaimAge); err != nil {
		log.Error().Err(err).Msg("stale processing reclaim failed")
	} else if n > 0 {
		log.Warn().Int("count", n).Msg("failed stale processing jobs")
	}

	jobs, err := s.jobs.FindPendingDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to query pending jobs")
		return
	}

	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup
	for _, job := range jobs {
		if !job.HasContent() {
			// Expected while content generation is still in flight. Never
			// publish with an empty title.
			log.Debug().Str("job_id", job.ID).Msg("content not ready, leaving pending")
			continue
		}

		delta := now.Sub(job.ScheduledTime)
		if delta < -s.opts.EarlyBound || delta > s.opts.LateBound {
			log.Debug().Str("job_id", job.ID).Dur("delta", delta).Msg("outside due window")
			continue
		}

		// A worker slot is taken before the claim so a claimed job is never
		// parked behind someone else's upload. Marking processing still
		// happens-before the blocking publish; the store rejects the
		// transition if another tick got here first.
		sem <- struct{}{}
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.StatusProcessing, nil, nil); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("could not claim job")
			<-sem
			continue
		}

		wg.Add(1)
		go func(j domain.Job) {
			defer func() {
				<-sem
				wg.Done()
			}()
			s.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *PublishService) runJob(ctx context.Context, job domain.Job) {
	// A panic in the publish path fails this one job, never the process or
	// the rest of the tick.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("publish panicked: %v", r)
			if uerr := s.jobs.UpdateStatus(ctx, job.ID, domain.StatusFailed, nil, &msg); uerr != nil {
				log.Error().Err(uerr).Str("job_id", job.ID).Msg("could not mark panicked job failed")
			}
			log.Error().Str("job_id", job.ID).Str("panic", fmt.Sprint(r)).Msg("publish panicked")
		}
	}()

	res, err := s.pub.Publish(ctx, job.OwnerID, job.VideoPath, *job.Title, deref(job.Description), job.ThumbnailPath)
	if err != nil {
		msg := err.Error()
		if uerr := s.jobs.UpdateStatus(ctx, job.ID, domain.StatusFailed, nil, &msg); uerr != nil {
			log.Error().Err(uerr).Str("job_id", job.ID).Msg("could not mark job failed")
		}
		log.Error().Err(err).Str("job_id", job.ID).Msg("publish failed")
		return
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.StatusCompleted, &res.VideoID, nil); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("could not mark job completed")
		return
	}
	log.Info().Str("job_id", job.ID).Str("video_id", res.VideoID).Str("url", res.URL).Msg("published")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
