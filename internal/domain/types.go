package domain

import "time"

// Status is the job lifecycle state. Transitions are forward-only:
// pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether moving from one status to another is legal.
// Terminal states never transition again; nothing ever returns to pending.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job ties a video file to a publish time and evolving content/status.
// Title and Description are set together or both nil; a nil pair means
// content has not been synthesized yet.
type Job struct {
	ID                  string
	OwnerID             string
	VideoPath           string
	ScheduledTime       time.Time
	Title               *string
	Description         *string
	ThumbnailPath       *string
	Status              Status
	ExternalVideoID     *string
	Error               *string
	CreatedAt           time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
}

// HasContent reports whether synthesized content is attached.
func (j Job) HasContent() bool {
	return j.Title != nil && *j.Title != ""
}

// Credential holds one owner's OAuth state for the upload platform.
type Credential struct {
	OwnerID         string
	RefreshToken    *string
	AccessToken     *string
	ChannelID       *string
	ChannelName     *string
	IsAuthenticated bool
	UpdatedAt       time.Time
}

// PublishedRecord is an append-only fact written once a job publishes.
type PublishedRecord struct {
	ID              string
	OwnerID         string
	VideoPath       string
	ExternalVideoID string
	URL             string
	Title           string
	Description     string
	ThumbnailPath   *string
	PublishedAt     time.Time
}

// JobTemplate describes a recurring publish slot. Each firing materializes
// a concrete Job at the cron expression's next occurrence.
type JobTemplate struct {
	ID        string
	OwnerID   string
	VideoPath string
	CronExpr  string
	Title     *string
	Enabled   bool
	LastRun   *time.Time
	NextRun   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
