package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"github.com/kiranshivaraju/clipcutter/internal/jobs"
	"github.com/kiranshivaraju/clipcutter/internal/store"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

const maxBodyBytes = 1 << 20

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Create(ctx context.Context, params jobs.CreateParams) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Status(ctx context.Context, id uuid.UUID) (models.JobSnapshot, error)
	Clips(ctx context.Context, id uuid.UUID) ([]models.Clip, error)
	// Advance reports whether a new attempt was submitted.
	Advance(ctx context.Context, id uuid.UUID) (*models.Job, bool, error)
	UpdateClip(ctx context.Context, jobID, clipID uuid.UUID, patch models.ClipPatch) (*models.Clip, error)
	Export(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type createJobRequest struct {
	SourceURL  string `json:"source_url"`
	YouTubeURL string `json:"youtube_url"`
	ClipLength *int   `json:"clip_length"`
	Language   string `json:"language"`
	Style      string `json:"style"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		sourceURL := req.SourceURL
		if sourceURL == "" {
			sourceURL = req.YouTubeURL
		}
		clipLength := models.DefaultClipLength
		if req.ClipLength != nil {
			clipLength = *req.ClipLength
			if err := models.ValidateClipLength(clipLength); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
		}

		job, err := svc.Create(r.Context(), jobs.CreateParams{
			SourceURL:  sourceURL,
			ClipLength: clipLength,
			Language:   req.Language,
			Style:      req.Style,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.MaxListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > store.MaxListLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be an integer between 1 and 100", nil)
				return
			}
			limit = n
		}

		list, err := svc.List(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.Job{}
		}
		response.Collection(w, list, response.ListMeta{Count: len(list), Limit: limit})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		job, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/jobs/{jobID}/status.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		snap, err := svc.Status(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, snap)
	}
}

// NewListClipsHandler returns an http.HandlerFunc for GET /api/jobs/{jobID}/clips.
func NewListClipsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		clips, err := svc.Clips(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if clips == nil {
			clips = []models.Clip{}
		}
		response.JSON(w, clips)
	}
}

// NewAdvanceJobHandler returns an http.HandlerFunc for POST /api/jobs/{jobID}/advance.
// It answers 202 only when a new attempt was submitted; otherwise the job is
// returned unchanged with 200.
func NewAdvanceJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		job, submitted, err := svc.Advance(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if submitted {
			response.Accepted(w, job)
			return
		}
		response.JSON(w, job)
	}
}

// NewUpdateClipHandler returns an http.HandlerFunc for PATCH /api/jobs/{jobID}/clips/{clipID}.
func NewUpdateClipHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		clipID, ok := uuidParam(w, r, "clipID")
		if !ok {
			return
		}

		var patch models.ClipPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if patch.IsEmpty() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"at least one of title, caption, start_time, end_time is required", nil)
			return
		}

		clip, err := svc.UpdateClip(r.Context(), jobID, clipID, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, clip)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service and store errors to API error codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrClipNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Clip not found", nil)
	case errors.Is(err, jobs.ErrMissingSourceURL), errors.Is(err, models.ErrInvalidClipLength):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, jobs.ErrInvalidRange):
		response.Error(w, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
	case errors.Is(err, jobs.ErrSourceMissing):
		response.Error(w, http.StatusBadRequest, "SOURCE_MISSING", err.Error(), nil)
	case errors.Is(err, jobs.ErrJobBusy):
		response.Error(w, http.StatusConflict, "JOB_BUSY", "Job is being processed, try again when it settles", nil)
	case errors.Is(err, jobs.ErrNotCompleted):
		response.Error(w, http.StatusConflict, "JOB_NOT_COMPLETED", "Job has not completed", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
