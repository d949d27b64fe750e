// Package archive bundles a completed job into a single ZIP download.
package archive

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/kiranshivaraju/clipcutter/internal/artifacts"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// ErrArtifactMissing is returned before anything is written when a clip file is gone.
var ErrArtifactMissing = errors.New("rendered artifact is missing")

type entry struct {
	name string
	path string
}

// Filename is the suggested download name for the bundle of a job.
func Filename(job *models.Job) string {
	return fmt.Sprintf("clipcutter-%s.zip", job.ID.String()[:8])
}

// Write streams the bundle of job to w:
//
//	clips/NN_<title>.mp4
//	thumbnails/NN_<title>.jpg
//	timeline/waveform.png, timeline/sprite.jpg (when rendered), timeline/clips.edl
//	job.json
func Write(w io.Writer, job *models.Job, layout artifacts.Layout) error {
	entries, clipNames, err := collect(job, layout)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := addFile(zw, e, job.UpdatedAt); err != nil {
			return err
		}
	}

	edl := GenerateEDL(job.Title, eventsFor(job.Clips, clipNames))
	if err := addBytes(zw, path.Join(artifacts.TimelineDir, "clips.edl"), []byte(edl), job.UpdatedAt); err != nil {
		return err
	}

	manifest, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job manifest: %w", err)
	}
	if err := addBytes(zw, "job.json", manifest, job.UpdatedAt); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return nil
}

// collect resolves every file of the bundle and checks that the clip files exist.
func collect(job *models.Job, layout artifacts.Layout) ([]entry, []string, error) {
	var entries []entry
	clipNames := make([]string, len(job.Clips))

	for i, clip := range job.Clips {
		stem := fmt.Sprintf("%02d_%s", i+1, fileStem(clip.Title))

		video, err := resolve(layout, clip.VideoURL)
		if err != nil {
			return nil, nil, fmt.Errorf("clip %s: %w", clip.ID, err)
		}
		clipNames[i] = path.Join(artifacts.ClipsDir, stem+".mp4")
		entries = append(entries, entry{name: clipNames[i], path: video})

		if clip.ThumbnailURL != "" {
			thumb, err := resolve(layout, clip.ThumbnailURL)
			if err != nil {
				return nil, nil, fmt.Errorf("thumbnail of clip %s: %w", clip.ID, err)
			}
			entries = append(entries, entry{name: path.Join(artifacts.ThumbsDir, stem+".jpg"), path: thumb})
		}
	}

	// Timeline images are best-effort renders; a missing file is left out.
	for _, t := range []struct{ url, file string }{
		{job.WaveformURL, artifacts.WaveformFile},
		{job.SpriteURL, artifacts.SpriteFile},
	} {
		if t.url == "" {
			continue
		}
		p, err := resolve(layout, t.url)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: path.Join(artifacts.TimelineDir, t.file), path: p})
	}
	return entries, clipNames, nil
}

func resolve(layout artifacts.Layout, url string) (string, error) {
	p, err := layout.PathFromURL(url)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrArtifactMissing, url)
	}
	return p, nil
}

func addFile(zw *zip.Writer, e entry, modified time.Time) error {
	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.name, err)
	}
	defer f.Close()

	// Media is already compressed.
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store, Modified: modified})
	if err != nil {
		return fmt.Errorf("adding %s: %w", e.name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("writing %s: %w", e.name, err)
	}
	return nil
}

func addBytes(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
