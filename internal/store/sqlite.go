package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  video_path TEXT NOT NULL,
  scheduled_time DATETIME NOT NULL,
  title TEXT,
  description TEXT,
  thumbnail_path TEXT,
  status TEXT NOT NULL CHECK(status IN ('pending','processing','completed','failed')) DEFAULT 'pending',
  external_video_id TEXT,
  error TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  processing_started_at DATETIME,
  completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_time ON jobs(status, scheduled_time);
CREATE TABLE IF NOT EXISTS credentials (
  owner_id TEXT PRIMARY KEY,
  refresh_token TEXT,
  access_token TEXT,
  channel_id TEXT,
  channel_name TEXT,
  is_authenticated INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS published (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  video_path TEXT NOT NULL,
  external_video_id TEXT NOT NULL,
  url TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  thumbnail_path TEXT,
  published_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_published_owner ON published(owner_id, published_at DESC);
CREATE TABLE IF NOT EXISTS job_templates (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  video_path TEXT NOT NULL,
  cron_expr TEXT NOT NULL,
  title TEXT,
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run DATETIME,
  next_run DATETIME NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_templates_next_run ON job_templates(enabled, next_run);
`
	_, err := db.Exec(schema)
	return err
}

// JobStore is the accessor contract the scheduler loops consume. All
// operations resolve against durable state; the loops hold nothing across
// ticks beyond what they re-read here.
type JobStore interface {
	Create(ctx context.Context, j domain.Job) (string, error)
	Get(ctx context.Context, id string) (domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Job, error)

	// FindPendingDue returns pending candidates ordered by scheduled time.
	// The publish loop applies the due-window and content checks per job.
	FindPendingDue(ctx context.Context) ([]domain.Job, error)

	// FindPendingNeedingContent returns pending jobs with no title whose
	// scheduled time falls inside (now, now+lead).
	FindPendingNeedingContent(ctx context.Context, now time.Time, lead time.Duration) ([]domain.Job, error)

	// UpdateContent writes title, description and thumbnail in one
	// statement so the title/description pairing never diverges.
	UpdateContent(ctx context.Context, id, title, description string, thumbnailPath *string) error

	// UpdateStatus enforces forward-only transitions; an illegal move
	// returns ErrIllegalTransition and leaves the row untouched.
	UpdateStatus(ctx context.Context, id string, status domain.Status, externalVideoID, errMsg *string) error

	// FailStaleProcessing marks processing jobs older than olderThan as
	// failed. Used on boot to resolve jobs orphaned by a crash.
	FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}

type CredentialStore interface {
	FindByOwner(ctx context.Context, ownerID string) (domain.Credential, error)
	UpdateAuth(ctx context.Context, c domain.Credential) error
	UpdateAccessToken(ctx context.Context, ownerID, accessToken string) error
}

type PublishedStore interface {
	CreatePublished(ctx context.Context, r domain.PublishedRecord) (string, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.PublishedRecord, error)
	ExistsForVideo(ctx context.Context, ownerID, videoPath string) (bool, error)
}

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t domain.JobTemplate) (string, error)
	ListTemplates(ctx context.Context, ownerID string) ([]domain.JobTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	FindDueTemplates(ctx context.Context, now time.Time) ([]domain.JobTemplate, error)
	MarkTemplateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
}

type SQLite struct{ db *sql.DB }

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

var (
	_ JobStore        = (*SQLite)(nil)
	_ CredentialStore = (*SQLite)(nil)
	_ PublishedStore  = (*SQLite)(nil)
	_ TemplateStore   = (*SQLite)(nil)
)

const jobCols = `id,owner_id,video_path,scheduled_time,title,description,thumbnail_path,status,external_video_id,error,created_at,processing_started_at,completed_at`

func scanJob(row interface{ Scan(...any) error }) (domain.Job, error) {
	var j domain.Job
	var title, desc, thumb, extID, errMsg sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.OwnerID, &j.VideoPath, &j.ScheduledTime,
		&title, &desc, &thumb, &j.Status, &extID, &errMsg,
		&j.CreatedAt, &started, &completed)
	if err != nil {
		return domain.Job{}, err
	}
	j.Title = nullStr(title)
	j.Description = nullStr(desc)
	j.ThumbnailPath = nullStr(thumb)
	j.ExternalVideoID = nullStr(extID)
	j.Error = nullStr(errMsg)
	j.ProcessingStartedAt = nullTime(started)
	j.CompletedAt = nullTime(completed)
	return j, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (s *SQLite) Create(ctx context.Context, j domain.Job) (string, error) {
	id := j.ID
	if id == "" {
		id = "job_" + uuid.NewString()
	}
	if j.Status == "" {
		j.Status = domain.StatusPending
	}
	if !j.Status.Valid() {
		return "", fmt.Errorf("invalid status %q", j.Status)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id,owner_id,video_path,scheduled_time,title,description,thumbnail_path,status,created_at)
VALUES (?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
`, id, j.OwnerID, j.VideoPath, j.ScheduledTime.UTC(), j.Title, j.Description, j.ThumbnailPath, j.Status)
	return id, err
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return domain.Job{}, ErrNotFound
	}
	return j, err
}

func (s *SQLite) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLite) FindPendingDue(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobCols+` FROM jobs WHERE status='pending' ORDER BY scheduled_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLite) FindPendingNeedingContent(ctx context.Context, now time.Time, lead time.Duration) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobCols+` FROM jobs
WHERE status='pending' AND (title IS NULL OR title='')
  AND scheduled_time > ? AND scheduled_time <= ?
ORDER BY scheduled_time ASC`, now.UTC(), now.Add(lead).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLite) UpdateContent(ctx context.Context, id, title, description string, thumbnailPath *string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET title=?, description=?, thumbnail_path=? WHERE id=?`,
		title, description, thumbnailPath, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, status domain.Status, externalVideoID, errMsg *string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current domain.Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id=?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		err = ErrNotFound
		return err
	}
	if err != nil {
		return err
	}
	if !domain.CanTransition(current, status) {
		err = fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, status)
		return err
	}

	switch status {
	case domain.StatusProcessing:
		_, err = tx.ExecContext(ctx, `
UPDATE jobs SET status=?, processing_started_at=CURRENT_TIMESTAMP WHERE id=?`, status, id)
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE jobs SET status=?, external_video_id=?, error=?, completed_at=CURRENT_TIMESTAMP WHERE id=?`,
			status, externalVideoID, errMsg, id)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status='failed', error='publish interrupted by restart, resubmit to retry', completed_at=CURRENT_TIMESTAMP
WHERE status='processing' AND strftime('%s','now') - strftime('%s',processing_started_at) > ?`,
		int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
