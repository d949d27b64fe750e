// Package artifacts maps job and clip ids to on-disk media paths and the
// public URLs they are served under.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotArtifactURL is returned when a URL does not point inside the media prefix.
var ErrNotArtifactURL = errors.New("url is not a media artifact reference")

const (
	SourceFile   = "source.mp4"
	ClipsDir     = "clips"
	ThumbsDir    = "thumbnails"
	TimelineDir  = "timeline"
	WaveformFile = "waveform.png"
	SpriteFile   = "sprite.jpg"
)

// Layout is the directory scheme <Root>/<jobID>/... served at <URLPrefix>/<jobID>/...
type Layout struct {
	Root      string
	URLPrefix string
}

func New(root, urlPrefix string) Layout {
	return Layout{Root: root, URLPrefix: "/" + strings.Trim(urlPrefix, "/")}
}

func (l Layout) JobDir(jobID uuid.UUID) string {
	return filepath.Join(l.Root, jobID.String())
}

func (l Layout) SourcePath(jobID uuid.UUID) string {
	return filepath.Join(l.JobDir(jobID), SourceFile)
}

func (l Layout) ClipPath(jobID, clipID uuid.UUID) string {
	return filepath.Join(l.JobDir(jobID), ClipsDir, clipID.String()+".mp4")
}

func (l Layout) ThumbnailPath(jobID, clipID uuid.UUID) string {
	return filepath.Join(l.JobDir(jobID), ThumbsDir, clipID.String()+".jpg")
}

func (l Layout) WaveformPath(jobID uuid.UUID) string {
	return filepath.Join(l.JobDir(jobID), TimelineDir, WaveformFile)
}

func (l Layout) SpritePath(jobID uuid.UUID) string {
	return filepath.Join(l.JobDir(jobID), TimelineDir, SpriteFile)
}

func (l Layout) ClipURL(jobID, clipID uuid.UUID) string {
	return path.Join(l.URLPrefix, jobID.String(), ClipsDir, clipID.String()+".mp4")
}

func (l Layout) ThumbnailURL(jobID, clipID uuid.UUID) string {
	return path.Join(l.URLPrefix, jobID.String(), ThumbsDir, clipID.String()+".jpg")
}

func (l Layout) WaveformURL(jobID uuid.UUID) string {
	return path.Join(l.URLPrefix, jobID.String(), TimelineDir, WaveformFile)
}

func (l Layout) SpriteURL(jobID uuid.UUID) string {
	return path.Join(l.URLPrefix, jobID.String(), TimelineDir, SpriteFile)
}

// PathFromURL resolves an artifact URL back to its file, refusing anything
// that would escape Root.
func (l Layout) PathFromURL(u string) (string, error) {
	rel, ok := strings.CutPrefix(path.Clean("/"+u), l.URLPrefix+"/")
	if !ok || rel == "" {
		return "", fmt.Errorf("%w: %s", ErrNotArtifactURL, u)
	}
	p := filepath.Join(l.Root, filepath.FromSlash(rel))
	if !strings.HasPrefix(p, filepath.Clean(l.Root)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrNotArtifactURL, u)
	}
	return p, nil
}

// HasSource reports whether the downloaded source of a job is still on disk.
func (l Layout) HasSource(jobID uuid.UUID) bool {
	info, err := os.Stat(l.SourcePath(jobID))
	return err == nil && info.Mode().IsRegular()
}

// PurgeRenders removes every rendered artifact of a job but keeps its source.
func (l Layout) PurgeRenders(jobID uuid.UUID) error {
	for _, dir := range []string{ClipsDir, ThumbsDir, TimelineDir} {
		if err := os.RemoveAll(filepath.Join(l.JobDir(jobID), dir)); err != nil {
			return fmt.Errorf("purging %s of job %s: %w", dir, jobID, err)
		}
	}
	return nil
}

// StagingPath returns a hidden sibling of p with the same extension, for
// renders that must not replace p until they are known to be complete.
func StagingPath(p string) string {
	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".staged"+ext)
}
