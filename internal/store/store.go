package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	// ErrNotClaimable is returned by ClaimJob when the job is neither queued nor in error.
	ErrNotClaimable = errors.New("job is not in a restartable state")
	// ErrStateConflict is returned when a write targets a job that is no longer in the state the write expects.
	ErrStateConflict = errors.New("job is not in the expected state")
)

const MaxListLimit = 100

// Store is the data access interface. All database operations go through here.
// Every write touches only the fields it names; no method overwrites a whole job.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// ListJobs returns jobs newest first, at most limit (capped at MaxListLimit).
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
	ListJobIDsByStatus(ctx context.Context, status string) ([]uuid.UUID, error)

	// ClaimJob atomically starts a new attempt: queued|error -> downloading,
	// progress 5, error cleared, clips and timeline references cleared, attempts+1.
	ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob applies a partial update. A status change is validated against
	// the job state machine inside the same statement.
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error
	// AppendClip adds a rendered clip to a processing job and raises its progress.
	AppendClip(ctx context.Context, id uuid.UUID, clip models.Clip, progress int) error
	// ReplaceClip overwrites the clip with the same id in place.
	ReplaceClip(ctx context.Context, id uuid.UUID, clip models.Clip) error
	// FailInterruptedJobs moves every downloading/processing job to error and
	// returns the ids it moved.
	FailInterruptedJobs(ctx context.Context, msg string) ([]uuid.UUID, error)
}

type jobUpdateParams struct {
	Status       *string
	Progress     *int
	Title        *string
	ErrorMessage *string
	ClearError   bool
	WaveformURL  *string
	SpriteURL    *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithStatus(status string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Status = &status
	}
}

func WithProgress(progress int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &progress
	}
}

func WithTitle(title string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Title = &title
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
		p.ClearError = false
	}
}

func ClearErrorMessage() JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = nil
		p.ClearError = true
	}
}

func WithWaveformURL(u string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.WaveformURL = &u
	}
}

func WithSpriteURL(u string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.SpriteURL = &u
	}
}

func buildUpdate(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
