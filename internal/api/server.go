package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipflow/internal/domain"
	"clipflow/internal/scheduler"
	"clipflow/internal/store"
)

// Server exposes the job-scheduling surface. It creates and reads records;
// all state transitions belong to the scheduler loops.
type Server struct {
	jobs      store.JobStore
	templates store.TemplateStore
	published store.PublishedStore
}

func NewServer(jobs store.JobStore, templates store.TemplateStore, published store.PublishedStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{jobs: jobs, templates: templates, published: published}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/jobs", s.createJob)
	r.Get("/api/jobs", s.listJobs)
	r.Get("/api/jobs/{id}", s.getJob)
	r.Post("/api/templates", s.createTemplate)
	r.Get("/api/templates", s.listTemplates)
	r.Delete("/api/templates/{id}", s.deleteTemplate)
	r.Get("/api/published", s.listPublished)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("clipflow_up 1\n"))
}

type createJobReq struct {
	OwnerID       string  `json:"owner_id"`
	VideoPath     string  `json:"video_path"`
	ScheduledTime string  `json:"scheduled_time"` // RFC3339; mutually exclusive with cron_expr
	CronExpr      string  `json:"cron_expr"`      // next firing is used as the scheduled time
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	ThumbnailPath *string `json:"thumbnail_path"`
}

type createResp struct {
	ID string `json:"id"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.OwnerID == "" || req.VideoPath == "" {
		http.Error(w, "owner_id and video_path are required", 400)
		return
	}

	var when time.Time
	switch {
	case req.ScheduledTime != "":
		t, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			http.Error(w, "scheduled_time must be RFC3339: "+err.Error(), 400)
			return
		}
		when = t
	case req.CronExpr != "":
		t, err := scheduler.NextRunTime(req.CronExpr, time.Now())
		if err != nil {
			http.Error(w, "invalid cron expression: "+err.Error(), 400)
			return
		}
		when = t
	default:
		http.Error(w, "scheduled_time or cron_expr is required", 400)
		return
	}

	job := domain.Job{
		OwnerID:       req.OwnerID,
		VideoPath:     req.VideoPath,
		ScheduledTime: when,
		ThumbnailPath: req.ThumbnailPath,
	}
	// Title and description travel as a pair; a bare description is
	// rejected, a bare title gets a stand-in description.
	if req.Title != nil && *req.Title != "" {
		job.Title = req.Title
		if req.Description != nil && *req.Description != "" {
			job.Description = req.Description
		} else {
			fallback := "Scheduled upload."
			job.Description = &fallback
		}
	} else if req.Description != nil && *req.Description != "" {
		http.Error(w, "description requires a title", 400)
		return
	}

	id, err := s.jobs.Create(r.Context(), job)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, createResp{ID: id})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", 404)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, jobView(j))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListRecent(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	views := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}
	writeJSON(w, 200, views)
}

func jobView(j domain.Job) map[string]any {
	v := map[string]any{
		"id":             j.ID,
		"owner_id":       j.OwnerID,
		"video_path":     j.VideoPath,
		"scheduled_time": j.ScheduledTime.Format(time.RFC3339),
		"status":         j.Status,
		"created_at":     j.CreatedAt.Format(time.RFC3339),
	}
	if j.Title != nil {
		v["title"] = *j.Title
	}
	if j.Description != nil {
		v["description"] = *j.Description
	}
	if j.ThumbnailPath != nil {
		v["thumbnail_path"] = *j.ThumbnailPath
	}
	if j.ExternalVideoID != nil {
		v["external_video_id"] = *j.ExternalVideoID
	}
	if j.Error != nil {
		v["error"] = *j.Error
	}
	return v
}

type createTemplateReq struct {
	OwnerID   string  `json:"owner_id"`
	VideoPath string  `json:"video_path"`
	CronExpr  string  `json:"cron_expr"`
	Title     *string `json:"title"`
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.OwnerID == "" || req.VideoPath == "" || req.CronExpr == "" {
		http.Error(w, "owner_id, video_path and cron_expr are required", 400)
		return
	}
	if err := scheduler.ValidateCronExpression(req.CronExpr); err != nil {
		http.Error(w, "invalid cron expression: "+err.Error(), 400)
		return
	}
	nextRun, err := scheduler.NextRunTime(req.CronExpr, time.Now())
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	id, err := s.templates.CreateTemplate(r.Context(), domain.JobTemplate{
		OwnerID:   req.OwnerID,
		VideoPath: req.VideoPath,
		CronExpr:  req.CronExpr,
		Title:     req.Title,
		Enabled:   true,
		NextRun:   nextRun,
	})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, createResp{ID: id})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", 400)
		return
	}
	tpls, err := s.templates.ListTemplates(r.Context(), ownerID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, tpls)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.templates.DeleteTemplate(r.Context(), id); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPublished(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", 400)
		return
	}
	recs, err := s.published.ListByOwner(r.Context(), ownerID, 50)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, recs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
