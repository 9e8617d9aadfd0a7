package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"clipflow/internal/store"
	"clipflow/internal/synth"
)

// ContentSynthesizer is what the pre-generation loop needs from the
// synthesizer. It never fails; it degrades to fallback content.
type ContentSynthesizer interface {
	Synthesize(ctx context.Context, videoPath, displayName string) synth.Result
}

// PregenService generates content for jobs entering the lead window so
// publishing is never blocked on a slow model call.
type PregenService struct {
	jobs     store.JobStore
	synth    ContentSynthesizer
	lead     time.Duration
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
}

func NewPregenService(jobs store.JobStore, s ContentSynthesizer, lead, interval time.Duration) *PregenService {
	return &PregenService{
		jobs:     jobs,
		synth:    s,
		lead:     lead,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (s *PregenService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Dur("lead", s.lead).Msg("pre-generation service started")

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

func (s *PregenService) Stop() {
	close(s.stop)
}

// tick synthesizes content for every match sequentially. One AI call in
// flight at a time bounds resource use.
func (s *PregenService) tick(ctx context.Context, now time.Time) {
	jobs, err := s.jobs.FindPendingNeedingContent(ctx, now, s.lead)
	if err != nil {
		log.Error().Err(err).Msg("failed to query jobs needing content")
		return
	}

	for _, job := range jobs {
		res := s.synth.Synthesize(ctx, job.VideoPath, "")
		if err := s.jobs.UpdateContent(ctx, job.ID, res.Title, res.Description, res.ThumbnailPath); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to write synthesized content")
			continue
		}
		log.Info().Str("job_id", job.ID).Str("title", res.Title).Msg("content synthesized")
	}
}
