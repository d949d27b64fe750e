package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// ErrNoOutput is returned when a command succeeded but the expected file is missing.
var ErrNoOutput = errors.New("command produced no output file")

// Config holds executable paths and per-operation timeouts. A zero timeout disables the bound.
type Config struct {
	YtDlpPath       string
	FFmpegPath      string
	FFprobePath     string
	DownloadTimeout time.Duration
	ProbeTimeout    time.Duration
	RenderTimeout   time.Duration
}

// TitleSource resolves the human-readable title of a source URL.
type TitleSource interface {
	Title(ctx context.Context, url string) (string, error)
}

// Tools implements the media operations on top of a Runner.
type Tools struct {
	runner Runner
	cfg    Config
	titles []TitleSource
	logger *slog.Logger
}

// NewTools creates Tools. Title sources are tried in order, with yt-dlp always last.
func NewTools(runner Runner, cfg Config, logger *slog.Logger, titles ...TitleSource) *Tools {
	t := &Tools{runner: runner, cfg: cfg, logger: logger}
	t.titles = append(append(t.titles, titles...), ytDlpTitle{t})
	return t
}

// FetchTitle is best-effort: any failure yields the placeholder title.
func (t *Tools) FetchTitle(ctx context.Context, url string) string {
	ctx, cancel := withTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()

	for _, src := range t.titles {
		title, err := src.Title(ctx, url)
		if err != nil {
			t.logger.Debug("title source failed", "source", fmt.Sprintf("%T", src), "error", err)
			continue
		}
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return models.PlaceholderTitle
}

type ytDlpTitle struct{ t *Tools }

func (y ytDlpTitle) Title(ctx context.Context, url string) (string, error) {
	out, err := y.t.runner.Run(ctx, y.t.cfg.YtDlpPath, "--skip-download", "--no-playlist", "--print", "title", url)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// Download fetches url into dir and normalizes it to dir/source.mp4.
func (t *Tools) Download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	ctx, cancel := withTimeout(ctx, t.cfg.DownloadTimeout)
	defer cancel()

	out := filepath.Join(dir, "source.mp4")
	_, err := t.runner.Run(ctx, t.cfg.YtDlpPath,
		"--no-playlist",
		"--no-progress",
		"-f", "bv*+ba/b",
		"--recode-video", "mp4",
		"-o", filepath.Join(dir, "source.%(ext)s"),
		url,
	)
	if err != nil {
		return "", fmt.Errorf("downloading source: %w", err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("downloading source: %w: %s", ErrNoOutput, out)
	}
	return out, nil
}

// ProbeDuration returns the container duration of path in seconds.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := withTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()

	out, err := t.runner.Run(ctx, t.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probing duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// RenderSegment cuts [start, start+length) of src into out as H.264/AAC mp4.
func (t *Tools) RenderSegment(ctx context.Context, src, out string, start, length int) error {
	return t.render(ctx, out, func(tmp string) []string {
		return []string{
			"-y", "-v", "error",
			"-ss", strconv.Itoa(start),
			"-i", src,
			"-t", strconv.Itoa(length),
			"-c:v", "libx264", "-preset", "veryfast",
			"-c:a", "aac",
			"-movflags", "+faststart",
			tmp,
		}
	})
}

// RenderThumbnail grabs a single JPEG frame of src at the given second.
func (t *Tools) RenderThumbnail(ctx context.Context, src, out string, at int) error {
	return t.render(ctx, out, func(tmp string) []string {
		return []string{
			"-y", "-v", "error",
			"-ss", strconv.Itoa(at),
			"-i", src,
			"-frames:v", "1",
			"-q:v", "2",
			tmp,
		}
	})
}

// RenderWaveform draws the audio track of src as a PNG strip.
func (t *Tools) RenderWaveform(ctx context.Context, src, out string) error {
	return t.render(ctx, out, func(tmp string) []string {
		return []string{
			"-y", "-v", "error",
			"-i", src,
			"-filter_complex", "showwavespic=s=1280x160:colors=#7c3aed",
			"-frames:v", "1",
			tmp,
		}
	})
}

// RenderSprite samples ten frames evenly across duration seconds and tiles them in one row.
func (t *Tools) RenderSprite(ctx context.Context, src, out string, duration int) error {
	interval := max(1, duration/10)
	return t.render(ctx, out, func(tmp string) []string {
		return []string{
			"-y", "-v", "error",
			"-i", src,
			"-vf", fmt.Sprintf("fps=1/%d,scale=160:-1,tile=10x1", interval),
			"-frames:v", "1",
			"-q:v", "4",
			tmp,
		}
	})
}

// render runs ffmpeg against a hidden sibling of out and only renames it into
// place once the command succeeded, so a failed render never publishes a file.
func (t *Tools) render(ctx context.Context, out string, args func(tmp string) []string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	ctx, cancel := withTimeout(ctx, t.cfg.RenderTimeout)
	defer cancel()

	tmp := partialPath(out)
	defer os.Remove(tmp)

	if _, err := t.runner.Run(ctx, t.cfg.FFmpegPath, args(tmp)...); err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(out), err)
	}
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(out), ErrNoOutput)
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("publishing %s: %w", filepath.Base(out), err)
	}
	return nil
}

// partialPath keeps the extension so ffmpeg still picks the right muxer.
func partialPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial"+ext)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
