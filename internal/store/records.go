package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/domain"
)

func (s *SQLite) FindByOwner(ctx context.Context, ownerID string) (domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT owner_id,refresh_token,access_token,channel_id,channel_name,is_authenticated,updated_at
FROM credentials WHERE owner_id=?`, ownerID)
	var c domain.Credential
	var refresh, access, chID, chName sql.NullString
	err := row.Scan(&c.OwnerID, &refresh, &access, &chID, &chName, &c.IsAuthenticated, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Credential{}, ErrNotFound
	}
	if err != nil {
		return domain.Credential{}, err
	}
	c.RefreshToken = nullStr(refresh)
	c.AccessToken = nullStr(access)
	c.ChannelID = nullStr(chID)
	c.ChannelName = nullStr(chName)
	return c, nil
}

func (s *SQLite) UpdateAuth(ctx context.Context, c domain.Credential) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (owner_id,refresh_token,access_token,channel_id,channel_name,is_authenticated,updated_at)
VALUES (?,?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(owner_id) DO UPDATE SET
  refresh_token=excluded.refresh_token,
  access_token=excluded.access_token,
  channel_id=excluded.channel_id,
  channel_name=excluded.channel_name,
  is_authenticated=excluded.is_authenticated,
  updated_at=CURRENT_TIMESTAMP`,
		c.OwnerID, c.RefreshToken, c.AccessToken, c.ChannelID, c.ChannelName, c.IsAuthenticated)
	return err
}

func (s *SQLite) UpdateAccessToken(ctx context.Context, ownerID, accessToken string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE credentials SET access_token=?, updated_at=CURRENT_TIMESTAMP WHERE owner_id=?`, accessToken, ownerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) CreatePublished(ctx context.Context, r domain.PublishedRecord) (string, error) {
	id := r.ID
	if id == "" {
		id = "pub_" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO published (id,owner_id,video_path,external_video_id,url,title,description,thumbnail_path,published_at)
VALUES (?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)`,
		id, r.OwnerID, r.VideoPath, r.ExternalVideoID, r.URL, r.Title, r.Description, r.ThumbnailPath)
	return id, err
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.PublishedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,owner_id,video_path,external_video_id,url,title,description,thumbnail_path,published_at
FROM published WHERE owner_id=? ORDER BY published_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.PublishedRecord
	for rows.Next() {
		var r domain.PublishedRecord
		var thumb sql.NullString
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.VideoPath, &r.ExternalVideoID, &r.URL,
			&r.Title, &r.Description, &thumb, &r.PublishedAt); err != nil {
			return nil, err
		}
		r.ThumbnailPath = nullStr(thumb)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLite) ExistsForVideo(ctx context.Context, ownerID, videoPath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM published WHERE owner_id=? AND video_path=?`, ownerID, videoPath).Scan(&n)
	return n > 0, err
}

func (s *SQLite) CreateTemplate(ctx context.Context, t domain.JobTemplate) (string, error) {
	id := t.ID
	if id == "" {
		id = "tpl_" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_templates (id,owner_id,video_path,cron_expr,title,enabled,last_run,next_run,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
		id, t.OwnerID, t.VideoPath, t.CronExpr, t.Title, t.Enabled, t.LastRun, t.NextRun.UTC())
	return id, err
}

func (s *SQLite) ListTemplates(ctx context.Context, ownerID string) ([]domain.JobTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,owner_id,video_path,cron_expr,title,enabled,last_run,next_run,created_at,updated_at
FROM job_templates WHERE owner_id=? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func (s *SQLite) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_templates WHERE id=?`, id)
	return err
}

func (s *SQLite) FindDueTemplates(ctx context.Context, now time.Time) ([]domain.JobTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,owner_id,video_path,cron_expr,title,enabled,last_run,next_run,created_at,updated_at
FROM job_templates WHERE enabled=1 AND next_run <= ? ORDER BY next_run`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func collectTemplates(rows *sql.Rows) ([]domain.JobTemplate, error) {
	var tpls []domain.JobTemplate
	for rows.Next() {
		var t domain.JobTemplate
		var title sql.NullString
		var lastRun sql.NullTime
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.VideoPath, &t.CronExpr, &title,
			&t.Enabled, &lastRun, &t.NextRun, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Title = nullStr(title)
		t.LastRun = nullTime(lastRun)
		tpls = append(tpls, t)
	}
	return tpls, rows.Err()
}

func (s *SQLite) MarkTemplateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE job_templates SET last_run=?, next_run=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		lastRun.UTC(), nextRun.UTC(), id)
	return err
}
