package models

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidRange = errors.New("end_time must be greater than start_time and start_time must not be negative")

// Clip is one rendered sub-interval of the source video plus its metadata.
// Media bytes live in artifact storage; the clip only holds references.
type Clip struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	StartTime    int       `json:"start_time"`
	EndTime      int       `json:"end_time"`
	Duration     int       `json:"duration"`
	ViralScore   int       `json:"viral_score"`
	ThumbnailURL string    `json:"thumbnail_url"`
	VideoURL     string    `json:"video_url"`
	Caption      string    `json:"caption"`
}

// SetRange updates start, end and duration together.
func (c *Clip) SetRange(start, end int) error {
	if start < 0 || end <= start {
		return ErrInvalidRange
	}
	c.StartTime = start
	c.EndTime = end
	c.Duration = end - start
	return nil
}

// HasArtifacts reports whether the clip already references rendered media.
func (c *Clip) HasArtifacts() bool {
	return c.VideoURL != "" || c.ThumbnailURL != ""
}

// ClipPatch is a partial clip update. Nil fields are left unchanged.
type ClipPatch struct {
	Title     *string `json:"title,omitempty"`
	Caption   *string `json:"caption,omitempty"`
	StartTime *int    `json:"start_time,omitempty"`
	EndTime   *int    `json:"end_time,omitempty"`
}

func (p ClipPatch) IsEmpty() bool {
	return p.Title == nil && p.Caption == nil && p.StartTime == nil && p.EndTime == nil
}

// Apply merges the patch into a copy of c. The original is never modified, so a
// rejected patch leaves no trace. rangeChanged reports whether start or end moved.
func (p ClipPatch) Apply(c Clip) (updated Clip, rangeChanged bool, err error) {
	updated = c

	start, end := c.StartTime, c.EndTime
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil {
		end = *p.EndTime
	}
	if err := updated.SetRange(start, end); err != nil {
		return c, false, err
	}
	rangeChanged = start != c.StartTime || end != c.EndTime

	if p.Title != nil {
		updated.Title = strings.TrimSpace(*p.Title)
	}
	if p.Caption != nil {
		updated.Caption = *p.Caption
	}
	return updated, rangeChanged, nil
}
