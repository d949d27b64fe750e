package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_PathsAndURLs(t *testing.T) {
	l := New("/srv/media", "media/")
	job := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	clip := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t, "/media", l.URLPrefix)
	assert.Equal(t, filepath.Join("/srv/media", job.String(), "source.mp4"), l.SourcePath(job))
	assert.Equal(t, "/media/"+job.String()+"/clips/"+clip.String()+".mp4", l.ClipURL(job, clip))
	assert.Equal(t, "/media/"+job.String()+"/thumbnails/"+clip.String()+".jpg", l.ThumbnailURL(job, clip))
	assert.Equal(t, "/media/"+job.String()+"/timeline/waveform.png", l.WaveformURL(job))
	assert.Equal(t, "/media/"+job.String()+"/timeline/sprite.jpg", l.SpriteURL(job))
}

func TestLayout_PathFromURL(t *testing.T) {
	l := New("/srv/media", "/media")
	job, clip := uuid.New(), uuid.New()

	p, err := l.PathFromURL(l.ClipURL(job, clip))
	require.NoError(t, err)
	assert.Equal(t, l.ClipPath(job, clip), p)

	for _, bad := range []string{"/other/x.mp4", "/media/", "/media/../etc/passwd", "https://cdn.example.com/x.jpg"} {
		_, err := l.PathFromURL(bad)
		assert.ErrorIs(t, err, ErrNotArtifactURL, bad)
	}
}

func TestLayout_PurgeRendersKeepsSource(t *testing.T) {
	l := New(t.TempDir(), "/media")
	job, clip := uuid.New(), uuid.New()

	for _, p := range []string{l.SourcePath(job), l.ClipPath(job, clip), l.ThumbnailPath(job, clip), l.WaveformPath(job), l.SpritePath(job)} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	assert.True(t, l.HasSource(job))

	require.NoError(t, l.PurgeRenders(job))
	assert.True(t, l.HasSource(job))
	assert.NoFileExists(t, l.ClipPath(job, clip))
	assert.NoFileExists(t, l.ThumbnailPath(job, clip))
	assert.NoFileExists(t, l.WaveformPath(job))

	// purging a job with nothing on disk is fine
	require.NoError(t, l.PurgeRenders(uuid.New()))
	assert.False(t, l.HasSource(uuid.New()))
}

func TestStagingPath(t *testing.T) {
	l := New("/srv/media", "/media")
	job, clip := uuid.New(), uuid.New()

	staged := StagingPath(l.ClipPath(job, clip))
	assert.Equal(t, filepath.Dir(l.ClipPath(job, clip)), filepath.Dir(staged))
	assert.Equal(t, "."+clip.String()+".staged.mp4", filepath.Base(staged))
	assert.Equal(t, ".jpg", filepath.Ext(StagingPath(l.ThumbnailPath(job, clip))))
}
