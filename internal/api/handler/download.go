package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"github.com/kiranshivaraju/clipcutter/internal/archive"
	"github.com/kiranshivaraju/clipcutter/internal/artifacts"
)

// countingWriter tracks whether any byte reached the client.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// NewDownloadHandler returns an http.HandlerFunc for GET /api/jobs/{jobID}/download.
func NewDownloadHandler(svc JobService, layout artifacts.Layout) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}
		job, err := svc.Export(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, archive.Filename(job)))

		cw := &countingWriter{w: w}
		err = archive.Write(cw, job, layout)
		if err == nil {
			return
		}
		if cw.n > 0 {
			slog.Error("archive stream aborted", "job_id", job.ID, "error", err)
			return
		}

		w.Header().Del("Content-Disposition")
		if errors.Is(err, archive.ErrArtifactMissing) || errors.Is(err, artifacts.ErrNotArtifactURL) {
			response.Error(w, http.StatusConflict, "ARTIFACT_MISSING", "Rendered media is missing, advance the job to render it again", nil)
			return
		}
		writeServiceError(w, r, err)
	}
}
