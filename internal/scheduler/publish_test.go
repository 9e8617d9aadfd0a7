package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"clipflow/internal/domain"
	"clipflow/internal/publish"
)

func strPtr(s string) *string { return &s }

func pendingJob(scheduled time.Time, title string) domain.Job {
	j := domain.Job{
		OwnerID:       "owner-1",
		VideoPath:     "/videos/clip.mp4",
		ScheduledTime: scheduled,
		Status:        domain.StatusPending,
	}
	if title != "" {
		j.Title = strPtr(title)
		j.Description = strPtr("desc")
	}
	return j
}

func newPublishService(jobs *fakeJobs, pub JobPublisher) *PublishService {
	return NewPublishService(jobs, pub, PublishOptions{})
}

func TestPublishTick_PublishesDueJob(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	id := jobs.add(pendingJob(now.Add(-30*time.Second), "A Fine Title"))

	pub := &fakePublisher{events: jobs}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), now)

	j, _ := jobs.Get(context.Background(), id)
	if j.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}
	if j.ExternalVideoID == nil || *j.ExternalVideoID != "yt-1" {
		t.Errorf("external id = %v, want yt-1", j.ExternalVideoID)
	}
}

func TestPublishTick_MarksProcessingBeforePublish(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	id := jobs.add(pendingJob(now, "A Fine Title"))

	pub := &fakePublisher{events: jobs}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), now)

	log := jobs.eventLog()
	claimIdx, publishIdx := -1, -1
	for i, e := range log {
		if e == fmt.Sprintf("status:%s:processing", id) {
			claimIdx = i
		}
		if strings.HasPrefix(e, "publish:") && publishIdx == -1 {
			publishIdx = i
		}
	}
	if claimIdx == -1 || publishIdx == -1 {
		t.Fatalf("missing events, log = %v", log)
	}
	if claimIdx > publishIdx {
		t.Errorf("processing mark must precede the upload call, log = %v", log)
	}
}

// panickyPublisher panics on one video path and succeeds on the rest.
type panickyPublisher struct {
	panicOn string
	inner   fakePublisher
}

func (p *panickyPublisher) Publish(ctx context.Context, ownerID, videoPath, title, description string, thumbnailPath *string) (publish.Result, error) {
	if videoPath == p.panicOn {
		panic("nil deref inside uploader")
	}
	return p.inner.Publish(ctx, ownerID, videoPath, title, description, thumbnailPath)
}

func TestPublishTick_PanicFailsOneJobNotTheTick(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	bad := pendingJob(now, "A Fine Title")
	bad.VideoPath = "/videos/bad.mp4"
	badID := jobs.add(bad)
	goodID := jobs.add(pendingJob(now, "Another Fine Title"))

	svc := newPublishService(jobs, &panickyPublisher{panicOn: "/videos/bad.mp4"})
	svc.tick(context.Background(), now)

	j, _ := jobs.Get(context.Background(), badID)
	if j.Status != domain.StatusFailed {
		t.Fatalf("panicked job status = %s, want failed", j.Status)
	}
	if j.Error == nil || !strings.Contains(*j.Error, "panic") {
		t.Errorf("panicked job error = %v, want a panic message", j.Error)
	}
	g, _ := jobs.Get(context.Background(), goodID)
	if g.Status != domain.StatusCompleted {
		t.Errorf("sibling job status = %s, want completed", g.Status)
	}
}

func TestPublishTick_ClaimWaitsForWorkerSlot(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	a := pendingJob(now, "A Fine Title")
	a.VideoPath = "/videos/a.mp4"
	jobs.add(a)
	b := pendingJob(now, "Another Fine Title")
	b.VideoPath = "/videos/b.mp4"
	jobs.add(b)

	svc := newPublishService(jobs, &fakePublisher{events: jobs})
	svc.tick(context.Background(), now)

	// With one worker a job is claimed only when it can run immediately, so
	// no second claim may appear before the first upload.
	log := jobs.eventLog()
	firstPublish, secondClaim, claims := -1, -1, 0
	for i, e := range log {
		if strings.HasPrefix(e, "publish:") && firstPublish == -1 {
			firstPublish = i
		}
		if strings.HasSuffix(e, ":processing") {
			claims++
			if claims == 2 {
				secondClaim = i
			}
		}
	}
	if firstPublish == -1 || secondClaim == -1 {
		t.Fatalf("missing events, log = %v", log)
	}
	if secondClaim < firstPublish {
		t.Errorf("second job claimed before the first upload started, log = %v", log)
	}
}

func TestPublishTick_SkipsJobWithoutContent(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	id := jobs.add(pendingJob(now, ""))

	pub := &fakePublisher{}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), now)

	if len(pub.calls) != 0 {
		t.Errorf("publisher called for contentless job: %v", pub.calls)
	}
	j, _ := jobs.Get(context.Background(), id)
	if j.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", j.Status)
	}
}

func TestPublishTick_DueWindow(t *testing.T) {
	cases := []struct {
		name        string
		offset      time.Duration // scheduled relative to now
		wantPublish bool
	}{
		{"two minutes early", 2 * time.Minute, false},
		{"thirty seconds early", 30 * time.Second, true},
		{"on time", 0, true},
		{"four minutes late", -4 * time.Minute, true},
		{"ten minutes late", -10 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := newFakeJobs()
			now := time.Now()
			id := jobs.add(pendingJob(now.Add(tc.offset), "A Fine Title"))

			pub := &fakePublisher{}
			svc := newPublishService(jobs, pub)
			svc.tick(context.Background(), now)

			published := len(pub.calls) > 0
			if published != tc.wantPublish {
				t.Errorf("published = %v, want %v", published, tc.wantPublish)
			}
			if !tc.wantPublish {
				j, _ := jobs.Get(context.Background(), id)
				if j.Status != domain.StatusPending {
					t.Errorf("out-of-window job status = %s, want pending", j.Status)
				}
			}
		})
	}
}

func TestPublishTick_FailureMarksFailedWithoutRetry(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	id := jobs.add(pendingJob(now, "A Fine Title"))

	pub := &fakePublisher{err: errors.New("upload exploded")}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), now)

	j, _ := jobs.Get(context.Background(), id)
	if j.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Error == nil || !strings.Contains(*j.Error, "upload exploded") {
		t.Errorf("error = %v, want captured message", j.Error)
	}

	// The next tick must not re-pick a failed job.
	svc.tick(context.Background(), now)
	if len(pub.calls) != 1 {
		t.Errorf("publisher called %d times across two ticks, want 1", len(pub.calls))
	}
}

func TestPublishTick_OneFailureDoesNotAbortTick(t *testing.T) {
	jobs := newFakeJobs()
	now := time.Now()
	jobs.add(pendingJob(now, "A Fine Title"))
	jobs.add(pendingJob(now, "Another Fine Title"))

	pub := &fakePublisher{err: errors.New("upload exploded")}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), now)

	if len(pub.calls) != 2 {
		t.Errorf("publisher called %d times, want 2 (tick continues past failures)", len(pub.calls))
	}
}

func TestPublishTick_StoreErrorSkipsTick(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(pendingJob(time.Now(), "A Fine Title"))
	jobs.findErr = errors.New("store unreachable")

	pub := &fakePublisher{}
	svc := newPublishService(jobs, pub)
	svc.tick(context.Background(), time.Now())

	if len(pub.calls) != 0 {
		t.Errorf("publisher called despite store error: %v", pub.calls)
	}
}
