// Package models contains shared data models used across the clipcutter codebase.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued      = "queued"
	JobStatusDownloading = "downloading"
	JobStatusProcessing  = "processing"
	JobStatusCompleted   = "completed"
	JobStatusError       = "error"
)

const (
	MinClipLength     = 15
	MaxClipLength     = 120
	DefaultClipLength = 30

	DefaultLanguage = "pt"
	DefaultStyle    = "dinamico"

	// PlaceholderTitle is shown until the real title is fetched, and kept when it can't be.
	PlaceholderTitle = "YouTube import"
)

var ErrInvalidClipLength = fmt.Errorf("clip_length must be between %d and %d seconds", MinClipLength, MaxClipLength)

// Job is one end-to-end request to turn one source video into a set of clips.
// Clients poll it while a worker drives it through the status machine.
type Job struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	SourceURL    string    `db:"source_url"    json:"source_url"`
	Title        string    `db:"title"         json:"title"`
	Status       string    `db:"status"        json:"status"`
	Progress     int       `db:"progress"      json:"progress"`
	ClipLength   int       `db:"clip_length"   json:"clip_length"`
	Language     string    `db:"language"      json:"language"`
	Style        string    `db:"style"         json:"style"`
	Clips        []Clip    `db:"clips"         json:"clips"`
	ClipCount    int       `db:"clip_count"    json:"clip_count"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	WaveformURL  string    `db:"waveform_url"  json:"waveform_url,omitempty"`
	SpriteURL    string    `db:"sprite_url"    json:"sprite_url,omitempty"`
	Attempts     int       `db:"attempts"      json:"attempts"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// NewJob builds a queued job with defaults applied. clipLength is validated.
func NewJob(sourceURL string, clipLength int, language, style string) (*Job, error) {
	if err := ValidateClipLength(clipLength); err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}
	if style == "" {
		style = DefaultStyle
	}
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.New(),
		SourceURL:  sourceURL,
		Title:      PlaceholderTitle,
		Status:     JobStatusQueued,
		ClipLength: clipLength,
		Language:   language,
		Style:      style,
		Clips:      []Clip{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func ValidateClipLength(seconds int) error {
	if seconds < MinClipLength || seconds > MaxClipLength {
		return ErrInvalidClipLength
	}
	return nil
}

// FindClip returns the index of the clip with the given id, or -1.
func (j *Job) FindClip(id uuid.UUID) int {
	for i := range j.Clips {
		if j.Clips[i].ID == id {
			return i
		}
	}
	return -1
}

// Restartable reports whether a new attempt may be started for the job.
func (j *Job) Restartable() bool {
	return IsRestartable(j.Status)
}

func IsRestartable(status string) bool {
	return status == JobStatusQueued || status == JobStatusError
}

// IsRunning reports whether an attempt currently owns the job.
func IsRunning(status string) bool {
	return status == JobStatusDownloading || status == JobStatusProcessing
}

var validTransitions = map[string][]string{
	JobStatusQueued:      {JobStatusDownloading},
	JobStatusError:       {JobStatusDownloading},
	JobStatusDownloading: {JobStatusProcessing, JobStatusError},
	JobStatusProcessing:  {JobStatusCompleted, JobStatusError},
}

// ErrInvalidTransition is returned when a status change is not allowed by the job state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionSources lists the statuses a job may be in to move to the given one.
func TransitionSources(to string) []string {
	var from []string
	for _, s := range []string{JobStatusQueued, JobStatusDownloading, JobStatusProcessing, JobStatusCompleted, JobStatusError} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// JobSnapshot is the lightweight progress view cached for polling clients.
type JobSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	ClipCount int       `json:"clip_count"`
}

func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{ID: j.ID, Status: j.Status, Progress: j.Progress, ClipCount: j.ClipCount}
}
