package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/internal/planner"
	"github.com/kiranshivaraju/clipcutter/internal/store"
	"github.com/kiranshivaraju/clipcutter/internal/textutil"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

const (
	progressTitled     = 10
	progressDownloaded = 20

	maxErrorMessage  = 1000
	failWriteTimeout = 10 * time.Second
)

// attempt is the state of one run of the pipeline for one job.
type attempt struct {
	job    *models.Job
	logger *slog.Logger
}

// runAttempt is the pool handler. It claims the job and drives it to completed
// or error; it never leaves a claimed job in downloading or processing.
func (s *Service) runAttempt(ctx context.Context, jobID uuid.UUID) {
	job, err := s.store.ClaimJob(ctx, jobID)
	if err != nil {
		if isSkippable(err) {
			s.logger.Debug("job not claimable, skipping attempt", "job_id", jobID, "error", err)
			return
		}
		s.logger.Error("claiming job", "job_id", jobID, "error", err)
		return
	}

	a := &attempt{
		job:    job,
		logger: s.logger.With("job_id", jobID, "attempt", job.Attempts),
	}
	a.logger.Info("job attempt started", "source_url", job.SourceURL)
	s.publish(ctx, job.Snapshot())

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in job attempt", "error", r)
			s.fail(ctx, a, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	if err := s.process(ctx, a); err != nil {
		s.fail(ctx, a, err)
		return
	}
	a.logger.Info("job attempt completed", "clips", a.job.ClipCount, "duration", time.Since(start))
}

func (s *Service) process(ctx context.Context, a *attempt) error {
	job := a.job

	if err := s.layout.PurgeRenders(job.ID); err != nil {
		return err
	}

	a.logger.Debug("fetching title", "stage", "title")
	title := s.media.FetchTitle(ctx, job.SourceURL)
	if err := s.update(ctx, a, store.WithTitle(title), store.WithProgress(progressTitled)); err != nil {
		return err
	}
	job.Title = title

	a.logger.Info("downloading source", "stage", "download")
	src, err := s.media.Download(ctx, job.SourceURL, s.layout.JobDir(job.ID))
	if err != nil {
		return err
	}
	if err := s.update(ctx, a, store.WithStatus(models.JobStatusProcessing), store.WithProgress(progressDownloaded)); err != nil {
		return err
	}

	seconds, err := s.sourceSeconds(ctx, src)
	if err != nil {
		return err
	}
	plan := planner.New(seconds, job.ClipLength)
	a.logger.Info("clip plan computed", "stage", "plan",
		"duration", seconds, "segments", plan.Len(), "segment_length", plan.SegmentLength)

	for i := range plan.Offsets {
		clip, err := s.renderSegment(ctx, a, src, plan, i)
		if err != nil {
			return err
		}
		progress := planner.SegmentProgress(i, plan.Len())
		if err := s.store.AppendClip(ctx, job.ID, clip, progress); err != nil {
			return fmt.Errorf("storing clip %d: %w", i+1, err)
		}
		job.Clips = append(job.Clips, clip)
		job.ClipCount = len(job.Clips)
		job.Progress = progress
		s.publish(ctx, job.Snapshot())
	}

	opts := []store.JobUpdateOption{
		store.WithStatus(models.JobStatusCompleted),
		store.WithProgress(100),
	}
	opts = append(opts, s.renderTimeline(ctx, a, src, seconds)...)
	return s.update(ctx, a, opts...)
}

// sourceSeconds returns the whole seconds of src, rejecting sub-second sources.
func (s *Service) sourceSeconds(ctx context.Context, src string) (int, error) {
	d, err := s.media.ProbeDuration(ctx, src)
	if err != nil {
		return 0, err
	}
	seconds := int(math.Floor(d))
	if seconds < 1 {
		return 0, ErrSourceTooShort
	}
	return seconds, nil
}

// renderSegment renders segment i and returns its clip, not yet stored.
func (s *Service) renderSegment(ctx context.Context, a *attempt, src string, plan planner.Plan, i int) (models.Clip, error) {
	job := a.job
	clip := models.Clip{
		ID:         uuid.New(),
		Title:      fmt.Sprintf("Highlight #%d", i+1),
		ViralScore: planner.ViralScore(i, plan.Len()),
	}
	start := plan.Offsets[i]
	if err := clip.SetRange(start, start+plan.SegmentLength); err != nil {
		return models.Clip{}, fmt.Errorf("segment %d: %w", i+1, err)
	}

	a.logger.Debug("rendering segment", "stage", "render", "clip_id", clip.ID,
		"index", i+1, "start_time", clip.StartTime, "end_time", clip.EndTime)
	if err := s.renderClipMedia(ctx, job.ID, clip); err != nil {
		return models.Clip{}, fmt.Errorf("segment %d: %w", i+1, err)
	}
	clip.VideoURL = s.layout.ClipURL(job.ID, clip.ID)
	clip.ThumbnailURL = s.layout.ThumbnailURL(job.ID, clip.ID)

	caption, err := s.captioner.Caption(ctx, models.CaptionRequest{
		JobTitle:  job.Title,
		ClipTitle: clip.Title,
		Index:     i,
		Total:     plan.Len(),
		StartTime: clip.StartTime,
		EndTime:   clip.EndTime,
		Language:  job.Language,
		Style:     job.Style,
	})
	if err != nil {
		a.logger.Warn("caption failed", "clip_id", clip.ID, "error", err)
	}
	clip.Caption = caption
	return clip, nil
}

// renderClipMedia writes the clip video and its thumbnail to their published paths.
func (s *Service) renderClipMedia(ctx context.Context, jobID uuid.UUID, clip models.Clip) error {
	return s.renderClipMediaTo(ctx, jobID, clip, s.layout.ClipPath(jobID, clip.ID), s.layout.ThumbnailPath(jobID, clip.ID))
}

// renderClipMediaTo renders the clip to videoOut and a thumbnail taken at the clip midpoint to thumbOut.
func (s *Service) renderClipMediaTo(ctx context.Context, jobID uuid.UUID, clip models.Clip, videoOut, thumbOut string) error {
	src := s.layout.SourcePath(jobID)
	if err := s.media.RenderSegment(ctx, src, videoOut, clip.StartTime, clip.Duration); err != nil {
		return err
	}
	at := clip.StartTime + clip.Duration/2
	return s.media.RenderThumbnail(ctx, src, thumbOut, at)
}

// renderTimeline renders the waveform and sprite. Failures are logged and the
// matching reference is left empty.
func (s *Service) renderTimeline(ctx context.Context, a *attempt, src string, seconds int) []store.JobUpdateOption {
	var opts []store.JobUpdateOption
	jobID := a.job.ID

	if err := s.media.RenderWaveform(ctx, src, s.layout.WaveformPath(jobID)); err != nil {
		a.logger.Warn("waveform render failed", "stage", "timeline", "error", err)
	} else {
		a.job.WaveformURL = s.layout.WaveformURL(jobID)
		opts = append(opts, store.WithWaveformURL(a.job.WaveformURL))
	}

	if err := s.media.RenderSprite(ctx, src, s.layout.SpritePath(jobID), seconds); err != nil {
		a.logger.Warn("sprite render failed", "stage", "timeline", "error", err)
	} else {
		a.job.SpriteURL = s.layout.SpriteURL(jobID)
		opts = append(opts, store.WithSpriteURL(a.job.SpriteURL))
	}
	return opts
}

// update writes opts and mirrors status and progress into the cached snapshot.
func (s *Service) update(ctx context.Context, a *attempt, opts ...store.JobUpdateOption) error {
	if err := s.store.UpdateJob(ctx, a.job.ID, opts...); err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	current, err := s.store.GetJob(ctx, a.job.ID)
	if err != nil {
		return fmt.Errorf("reloading job: %w", err)
	}
	a.job.Status = current.Status
	a.job.Progress = current.Progress
	a.job.ClipCount = current.ClipCount
	s.publish(ctx, a.job.Snapshot())
	return nil
}

// fail records cause on the job. The write uses a context detached from
// cancellation so a shutdown still leaves the job in error.
func (s *Service) fail(ctx context.Context, a *attempt, cause error) {
	msg := textutil.Clean(cause.Error(), maxErrorMessage)
	a.logger.Error("job attempt failed", "error", msg)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	err := s.store.UpdateJob(writeCtx, a.job.ID,
		store.WithStatus(models.JobStatusError),
		store.WithProgress(0),
		store.WithErrorMessage(msg),
	)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			a.logger.Warn("job no longer running, failure not recorded", "error", err)
		} else {
			a.logger.Error("recording job failure", "error", err)
		}
		// The store is authoritative now; drop the snapshot so status reads fall through to it.
		s.forget(writeCtx, a.job.ID)
		return
	}

	a.job.Status = models.JobStatusError
	a.job.Progress = 0
	s.publish(writeCtx, a.job.Snapshot())
}
