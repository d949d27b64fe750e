// Package media wraps the external executables (yt-dlp, ffmpeg, ffprobe) that
// download sources and render clip artifacts.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kiranshivaraju/clipcutter/internal/textutil"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	waitDelay      = 5 * time.Second
)

// Runner executes one external command and returns its stdout.
// It is the only place process-level failure detail is inspected.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is returned when an external command cannot start or exits non-zero.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.ToValidUTF8(strings.TrimSpace(e.Stderr), "\uFFFD")
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s failed: %s", e.Name, tail(msg, 512))
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, tail(msg, 512))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	// yt-dlp spawns ffmpeg children that may keep the pipes open after a kill.
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderr, limit: maxStderrBytes})

	r.logger.Debug("executing command", "name", name, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		r.logger.Debug("command succeeded", "name", name, "duration_ms", elapsed.Milliseconds())
		return stdout.Bytes(), nil
	}

	cmdErr := &CommandError{Name: name, Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		cmdErr.Err = ctxErr
	}

	r.logger.Warn("command failed",
		"name", name,
		"exit_code", cmdErr.ExitCode,
		"duration_ms", elapsed.Milliseconds(),
		"stderr_tail", tail(cmdErr.Stderr, 512),
	)
	return stdout.Bytes(), cmdErr
}

// tail keeps the end of a command's output, where the actual error usually is.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + textutil.Tail(s, maxLen)
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
