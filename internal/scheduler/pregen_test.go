package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipflow/internal/domain"
	"clipflow/internal/synth"
)

func newPregen(jobs *fakeJobs, s ContentSynthesizer) *PregenService {
	return NewPregenService(jobs, s, 10*time.Minute, time.Minute)
}

func TestPregenTick_WritesContentBack(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	id := jobs.add(pendingJob(now.Add(2*time.Minute), ""))

	thumb := "/thumbs/clip_thumb.jpg"
	fs := &fakeSynth{res: synth.Result{
		Title:         "Barista Pours A Perfect Swan",
		Description:   "Latte art at golden hour.",
		ThumbnailPath: &thumb,
	}}
	svc := newPregen(jobs, fs)
	svc.tick(context.Background(), now)

	j, _ := jobs.Get(context.Background(), id)
	if j.Title == nil || *j.Title != "Barista Pours A Perfect Swan" {
		t.Errorf("title = %v", j.Title)
	}
	if j.Description == nil {
		t.Error("description must be written with the title")
	}
	if j.ThumbnailPath == nil || *j.ThumbnailPath != thumb {
		t.Errorf("thumbnail = %v", j.ThumbnailPath)
	}
	if j.Status != domain.StatusPending {
		t.Errorf("pre-generation must not change status, got %s", j.Status)
	}
}

func TestPregenTick_OnlyLeadWindowJobs(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	jobs.add(pendingJob(now.Add(2*time.Minute), ""))  // in lead window
	jobs.add(pendingJob(now.Add(30*time.Minute), "")) // too far out
	jobs.add(pendingJob(now.Add(-time.Minute), ""))   // already due

	fs := &fakeSynth{res: synth.Result{Title: "T Is Long Enough", Description: "d"}}
	svc := newPregen(jobs, fs)
	svc.tick(context.Background(), now)

	if len(fs.calls) != 1 {
		t.Errorf("synthesizer called %d times, want 1", len(fs.calls))
	}
}

func TestPregenTick_SkipsJobsWithContent(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	jobs.add(pendingJob(now.Add(2*time.Minute), "Already Has A Title"))

	fs := &fakeSynth{res: synth.Result{Title: "T", Description: "d"}}
	svc := newPregen(jobs, fs)
	svc.tick(context.Background(), now)

	if len(fs.calls) != 0 {
		t.Errorf("synthesizer called for a job that has content: %v", fs.calls)
	}
}

func TestPregenTick_StoreErrorSkipsTick(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(pendingJob(time.Now().Add(2*time.Minute), ""))
	jobs.findErr = errors.New("store unreachable")

	fs := &fakeSynth{res: synth.Result{Title: "T", Description: "d"}}
	svc := newPregen(jobs, fs)
	svc.tick(context.Background(), time.Now())

	if len(fs.calls) != 0 {
		t.Error("synthesizer must not run when the store is unreachable")
	}
}
