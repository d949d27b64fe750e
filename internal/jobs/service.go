// Package jobs owns the clip job lifecycle: creation, the worker pool that runs
// attempts, restart, clip edits and startup recovery.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/internal/artifacts"
	"github.com/kiranshivaraju/clipcutter/internal/cache"
	"github.com/kiranshivaraju/clipcutter/internal/store"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

const (
	statusTTL        = 30 * time.Minute
	interruptedError = "interrupted by restart"
)

// Media is the subset of media.Tools the pipeline drives.
type Media interface {
	FetchTitle(ctx context.Context, url string) string
	Download(ctx context.Context, url, dir string) (string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
	RenderSegment(ctx context.Context, src, out string, start, length int) error
	RenderThumbnail(ctx context.Context, src, out string, at int) error
	RenderWaveform(ctx context.Context, src, out string) error
	RenderSprite(ctx context.Context, src, out string, duration int) error
}

type Dependencies struct {
	Store     store.Store
	Cache     cache.Cache
	Media     Media
	Captioner models.Captioner
	Layout    artifacts.Layout
	Logger    *slog.Logger
}

type PoolConfig struct {
	Workers   int
	QueueSize int
}

// CreateParams holds the validated fields of a job creation request.
type CreateParams struct {
	SourceURL  string
	ClipLength int
	Language   string
	Style      string
}

// Service is the entry point for every job operation.
type Service struct {
	store     store.Store
	cache     cache.Cache
	media     Media
	captioner models.Captioner
	layout    artifacts.Layout
	logger    *slog.Logger
	pool      *Pool
}

func NewService(deps Dependencies, cfg PoolConfig) *Service {
	s := &Service{
		store:     deps.Store,
		cache:     deps.Cache,
		media:     deps.Media,
		captioner: deps.Captioner,
		layout:    deps.Layout,
		logger:    deps.Logger,
	}
	s.pool = NewPool(cfg.Workers, cfg.QueueSize, s.runAttempt, deps.Logger)
	return s
}

// Start launches the workers. Call Recover first so interrupted jobs are settled.
func (s *Service) Start() {
	s.pool.Start()
}

// Shutdown stops accepting attempts and waits for running ones.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.pool.Stop(ctx)
}

// Create persists a queued job and submits its first attempt.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Job, error) {
	url := strings.TrimSpace(params.SourceURL)
	if url == "" {
		return nil, ErrMissingSourceURL
	}
	clipLength := params.ClipLength
	if clipLength == 0 {
		clipLength = models.DefaultClipLength
	}

	job, err := models.NewJob(url, clipLength, params.Language, params.Style)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.publish(ctx, job.Snapshot())

	if !s.pool.Submit(job.ID) {
		s.logger.Warn("job left queued, worker queue unavailable", "job_id", job.ID)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.store.ListJobs(ctx, limit)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) Clips(ctx context.Context, id uuid.UUID) ([]models.Clip, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Clips, nil
}

// Status returns the cached progress snapshot, falling back to the store.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (models.JobSnapshot, error) {
	snap, ok, err := s.cache.GetJobStatus(ctx, id)
	if err == nil && ok {
		return snap, nil
	}
	if err != nil {
		s.logger.Warn("job status cache read failed", "job_id", id, "error", err)
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return models.JobSnapshot{}, err
	}
	snap = job.Snapshot()
	s.publish(ctx, snap)
	return snap, nil
}

// Advance starts a new attempt for a queued or failed job. For any other
// status it is a no-op. The job is returned as currently stored, along with
// whether an attempt was actually submitted.
func (s *Service) Advance(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !job.Restartable() {
		return job, false, nil
	}
	if !s.pool.Submit(job.ID) {
		s.logger.Debug("job attempt not submitted", "job_id", job.ID, "status", job.Status)
		return job, false, nil
	}
	s.logger.Info("job attempt submitted", "job_id", job.ID, "status", job.Status)
	return job, true, nil
}

// Export returns a completed job for bundling.
func (s *Service) Export(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, ErrNotCompleted
	}
	return job, nil
}

// UpdateClip merges patch into one clip. A changed range renders the clip and
// its thumbnail to staging files first; they replace the published media only
// once both renders and the metadata write have succeeded.
func (s *Service) UpdateClip(ctx context.Context, jobID, clipID uuid.UUID, patch models.ClipPatch) (*models.Clip, error) {
	if !s.pool.TryAcquire(jobID) {
		return nil, ErrJobBusy
	}
	defer s.pool.Release(jobID)

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if models.IsRunning(job.Status) {
		return nil, ErrJobBusy
	}
	idx := job.FindClip(clipID)
	if idx < 0 {
		return nil, ErrClipNotFound
	}

	updated, rangeChanged, err := patch.Apply(job.Clips[idx])
	if err != nil {
		return nil, err
	}

	if !rangeChanged || !updated.HasArtifacts() {
		if err := s.store.ReplaceClip(ctx, jobID, updated); err != nil {
			return nil, fmt.Errorf("storing clip: %w", err)
		}
		return &updated, nil
	}

	if !s.layout.HasSource(jobID) {
		return nil, ErrSourceMissing
	}
	clipPath := s.layout.ClipPath(jobID, clipID)
	thumbPath := s.layout.ThumbnailPath(jobID, clipID)
	stagedClip, stagedThumb := artifacts.StagingPath(clipPath), artifacts.StagingPath(thumbPath)
	defer os.Remove(stagedClip)
	defer os.Remove(stagedThumb)

	if err := s.renderClipMediaTo(ctx, jobID, updated, stagedClip, stagedThumb); err != nil {
		return nil, fmt.Errorf("re-rendering clip: %w", err)
	}
	if err := s.store.ReplaceClip(ctx, jobID, updated); err != nil {
		return nil, fmt.Errorf("storing clip: %w", err)
	}
	if err := os.Rename(stagedClip, clipPath); err != nil {
		return nil, fmt.Errorf("publishing clip: %w", err)
	}
	if err := os.Rename(stagedThumb, thumbPath); err != nil {
		return nil, fmt.Errorf("publishing thumbnail: %w", err)
	}
	s.logger.Info("clip re-rendered", "job_id", jobID, "clip_id", clipID,
		"start_time", updated.StartTime, "end_time", updated.EndTime)
	return &updated, nil
}

// Recover settles jobs left behind by a previous process: running attempts are
// failed and queued jobs are submitted again.
func (s *Service) Recover(ctx context.Context) error {
	failed, err := s.store.FailInterruptedJobs(ctx, interruptedError)
	if err != nil {
		return fmt.Errorf("failing interrupted jobs: %w", err)
	}
	for _, id := range failed {
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			s.forget(ctx, id)
			continue
		}
		s.publish(ctx, job.Snapshot())
	}
	if len(failed) > 0 {
		s.logger.Warn("marked interrupted jobs as failed", "count", len(failed))
	}

	ids, err := s.store.ListJobIDsByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("listing queued jobs: %w", err)
	}
	resubmitted := 0
	for _, id := range ids {
		if s.pool.Submit(id) {
			resubmitted++
		}
	}
	if len(ids) > 0 {
		s.logger.Info("resubmitted queued jobs", "count", resubmitted, "queued", len(ids))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, snap models.JobSnapshot) {
	if err := s.cache.SetJobStatus(ctx, snap, statusTTL); err != nil {
		s.logger.Debug("job status cache write failed", "job_id", snap.ID, "error", err)
	}
}

// forget drops the cached snapshot of a job whose stored state could not be mirrored.
func (s *Service) forget(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.JobStatusKey(id)); err != nil {
		s.logger.Debug("job status cache delete failed", "job_id", id, "error", err)
	}
}

// isSkippable reports whether a claim failure just means another attempt owns the job.
func isSkippable(err error) bool {
	return errors.Is(err, store.ErrNotClaimable) || errors.Is(err, store.ErrNotFound)
}
