package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/clipcutter/internal/api/middleware"
	"github.com/kiranshivaraju/clipcutter/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler     http.HandlerFunc
	CreateJobHandler  http.HandlerFunc
	ListJobsHandler   http.HandlerFunc
	GetJobHandler     http.HandlerFunc
	JobStatusHandler  http.HandlerFunc
	ListClipsHandler  http.HandlerFunc
	AdvanceJobHandler http.HandlerFunc
	UpdateClipHandler http.HandlerFunc
	DownloadHandler   http.HandlerFunc

	// MediaPrefix is the URL prefix rendered artifacts are served under.
	MediaPrefix  string
	MediaHandler http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public health check
	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	// Media is public so <video> and <img> tags can load it without a header.
	if deps.MediaHandler != nil && deps.MediaPrefix != "" {
		r.Handle(deps.MediaPrefix+"/*", deps.MediaHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}

		// Progress polling stays outside the rate limit; clients poll these
		// every second or two while a job runs.
		r.Get("/api/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/jobs/{jobID}/status", orNotImplemented(deps.JobStatusHandler))

		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}

			r.Post("/api/jobs", orNotImplemented(deps.CreateJobHandler))
			r.Get("/api/jobs", orNotImplemented(deps.ListJobsHandler))
			r.Get("/api/jobs/{jobID}/clips", orNotImplemented(deps.ListClipsHandler))
			r.Patch("/api/jobs/{jobID}/clips/{clipID}", orNotImplemented(deps.UpdateClipHandler))
			r.Post("/api/jobs/{jobID}/advance", orNotImplemented(deps.AdvanceJobHandler))
			r.Get("/api/jobs/{jobID}/download", orNotImplemented(deps.DownloadHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
