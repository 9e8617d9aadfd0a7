package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clipflow/internal/domain"
	"clipflow/internal/publish"
	"clipflow/internal/store"
	"clipflow/internal/synth"
)

// fakeJobs is an in-memory JobStore that enforces the same forward-only
// transition rule as the sqlite store and records the order of operations.
type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	nextID  int
	events  []string
	findErr error
}

var _ store.JobStore = (*fakeJobs)(nil)

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.Job{}}
}

func (f *fakeJobs) add(j domain.Job) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("job_%d", f.nextID)
	j.ID = id
	if j.Status == "" {
		j.Status = domain.StatusPending
	}
	cp := j
	f.jobs[id] = &cp
	return id
}

func (f *fakeJobs) Create(ctx context.Context, j domain.Job) (string, error) {
	return f.add(j), nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, store.ErrNotFound
	}
	return *j, nil
}

func (f *fakeJobs) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) FindPendingDue(ctx context.Context) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.Job
	for _, j := range f.jobs {
		if j.Status == domain.StatusPending {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeJobs) FindPendingNeedingContent(ctx context.Context, now time.Time, lead time.Duration) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.Job
	for _, j := range f.jobs {
		if j.Status != domain.StatusPending || j.HasContent() {
			continue
		}
		if j.ScheduledTime.After(now) && !j.ScheduledTime.After(now.Add(lead)) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeJobs) UpdateContent(ctx context.Context, id, title, description string, thumbnailPath *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Title = &title
	j.Description = &description
	j.ThumbnailPath = thumbnailPath
	f.events = append(f.events, "content:"+id)
	return nil
}

func (f *fakeJobs) UpdateStatus(ctx context.Context, id string, status domain.Status, externalVideoID, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !domain.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, j.Status, status)
	}
	j.Status = status
	j.ExternalVideoID = externalVideoID
	j.Error = errMsg
	f.events = append(f.events, fmt.Sprintf("status:%s:%s", id, status))
	return nil
}

func (f *fakeJobs) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeJobs) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// fakePublisher returns a canned result or error and records which videos it
// was asked to publish.
type fakePublisher struct {
	mu     sync.Mutex
	err    error
	calls  []string
	events *fakeJobs // shared event log for ordering assertions
}

func (p *fakePublisher) Publish(ctx context.Context, ownerID, videoPath, title, description string, thumbnailPath *string) (publish.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, videoPath)
	p.mu.Unlock()
	if p.events != nil {
		p.events.mu.Lock()
		p.events.events = append(p.events.events, "publish:"+videoPath)
		p.events.mu.Unlock()
	}
	if p.err != nil {
		return publish.Result{}, p.err
	}
	return publish.Result{VideoID: "yt-1", URL: "https://www.youtube.com/watch?v=yt-1"}, nil
}

// fakeSynth returns fixed content.
type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	res   synth.Result
}

func (s *fakeSynth) Synthesize(ctx context.Context, videoPath, displayName string) synth.Result {
	s.mu.Lock()
	s.calls = append(s.calls, videoPath)
	s.mu.Unlock()
	return s.res
}

// fakePublished is an in-memory PublishedStore.
type fakePublished struct {
	mu   sync.Mutex
	recs []domain.PublishedRecord
}

var _ store.PublishedStore = (*fakePublished)(nil)

func (f *fakePublished) CreatePublished(ctx context.Context, r domain.PublishedRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = fmt.Sprintf("pub_%d", len(f.recs)+1)
	f.recs = append(f.recs, r)
	return r.ID, nil
}

func (f *fakePublished) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.PublishedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PublishedRecord
	for _, r := range f.recs {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePublished) ExistsForVideo(ctx context.Context, ownerID, videoPath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.OwnerID == ownerID && r.VideoPath == videoPath {
			return true, nil
		}
	}
	return false, nil
}

// fakeTemplates is an in-memory TemplateStore.
type fakeTemplates struct {
	mu   sync.Mutex
	tpls map[string]*domain.JobTemplate
}

var _ store.TemplateStore = (*fakeTemplates)(nil)

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{tpls: map[string]*domain.JobTemplate{}}
}

func (f *fakeTemplates) CreateTemplate(ctx context.Context, t domain.JobTemplate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("tpl_%d", len(f.tpls)+1)
	t.ID = id
	cp := t
	f.tpls[id] = &cp
	return id, nil
}

func (f *fakeTemplates) ListTemplates(ctx context.Context, ownerID string) ([]domain.JobTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobTemplate
	for _, t := range f.tpls {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTemplates) DeleteTemplate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tpls, id)
	return nil
}

func (f *fakeTemplates) FindDueTemplates(ctx context.Context, now time.Time) ([]domain.JobTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobTemplate
	for _, t := range f.tpls {
		if t.Enabled && !t.NextRun.After(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTemplates) MarkTemplateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tpls[id]
	if !ok {
		return store.ErrNotFound
	}
	t.LastRun = &lastRun
	t.NextRun = nextRun
	return nil
}
