package jobs

import (
	"errors"

	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

var (
	ErrMissingSourceURL = errors.New("source_url is required")
	ErrInvalidRange     = models.ErrInvalidRange
	ErrClipNotFound     = errors.New("clip not found")
	ErrJobBusy          = errors.New("job is being processed")
	ErrNotCompleted     = errors.New("job has not completed")
	ErrSourceTooShort   = errors.New("source video is shorter than one second")

	// ErrSourceMissing is returned when a clip range edit needs the downloaded source and it is gone.
	ErrSourceMissing = errors.New("source video is no longer available for re-rendering")
)
