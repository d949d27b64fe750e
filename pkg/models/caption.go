package models

import "context"

// Captioner writes the social-media caption of a clip.
// Never call a specific provider directly — always inject this interface.
type Captioner interface {
	Caption(ctx context.Context, req CaptionRequest) (string, error)
	// Name returns the provider identifier (e.g., "template", "openai").
	Name() string
}

// CaptionRequest describes the clip being captioned.
type CaptionRequest struct {
	JobTitle  string
	ClipTitle string
	Index     int // zero-based
	Total     int
	StartTime int
	EndTime   int
	Language  string
	Style     string
}
