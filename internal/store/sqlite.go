package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store on a single local SQLite file. It is meant for
// single-process deployments; writes are serialized through one connection.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database file at path.
// Migrations are applied separately with RunMigrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	logger.Info("sqlite store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	clips := job.Clips
	if clips == nil {
		clips = []models.Clip{}
	}
	raw, err := json.Marshal(clips)
	if err != nil {
		return fmt.Errorf("encode clips: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, source_url, title, status, progress, clip_length, language, style,
		   clips, clip_count, error_message, waveform_url, sprite_url, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.SourceURL, job.Title, job.Status, job.Progress, job.ClipLength, job.Language, job.Style,
		string(raw), len(clips), job.ErrorMessage, job.WaveformURL, job.SpriteURL, job.Attempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return getJob(ctx, s.db, id)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ListJobIDsByStatus(ctx context.Context, status string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	return collectSQLiteIDs(rows)
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var claimed *models.Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		j, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(j.Status, models.JobStatusDownloading) {
			return ErrNotClaimable
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = 5, error_message = NULL, clips = '[]', clip_count = 0,
			   waveform_url = '', sprite_url = '', attempts = attempts + 1, updated_at = ?
			 WHERE id = ?`,
			models.JobStatusDownloading, formatTime(now), id.String()); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		j.Status = models.JobStatusDownloading
		j.Progress = 5
		j.ErrorMessage = nil
		j.Clips = []models.Clip{}
		j.ClipCount = 0
		j.WaveformURL, j.SpriteURL = "", ""
		j.Attempts++
		j.UpdatedAt = now
		claimed = j
		return nil
	})
	return claimed, err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	params := buildUpdate(opts)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if params.Status != nil && !models.CanTransition(current, *params.Status) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, *params.Status)
		}

		sets := []string{"updated_at = ?"}
		args := []any{formatTime(time.Now().UTC())}
		set := func(col string, v any) {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
		if params.Status != nil {
			set("status", *params.Status)
		}
		if params.Progress != nil {
			set("progress", *params.Progress)
		}
		if params.Title != nil {
			set("title", *params.Title)
		}
		if params.ErrorMessage != nil {
			set("error_message", *params.ErrorMessage)
		}
		if params.ClearError {
			sets = append(sets, "error_message = NULL")
		}
		if params.WaveformURL != nil {
			set("waveform_url", *params.WaveformURL)
		}
		if params.SpriteURL != nil {
			set("sprite_url", *params.SpriteURL)
		}
		args = append(args, id.String())

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) AppendClip(ctx context.Context, id uuid.UUID, clip models.Clip, progress int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		j, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.Status != models.JobStatusProcessing {
			return ErrStateConflict
		}
		clips := append(j.Clips, clip)
		return writeClips(ctx, tx, id, clips, max(j.Progress, progress))
	})
}

func (s *SQLiteStore) ReplaceClip(ctx context.Context, id uuid.UUID, clip models.Clip) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		j, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		idx := j.FindClip(clip.ID)
		if idx < 0 {
			return ErrNotFound
		}
		j.Clips[idx] = clip
		return writeClips(ctx, tx, id, j.Clips, j.Progress)
	})
}

func (s *SQLiteStore) FailInterruptedJobs(ctx context.Context, msg string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs SET status = ?, progress = 0, error_message = ?, updated_at = ?
		 WHERE status IN (?, ?)
		 RETURNING id`,
		models.JobStatusError, msg, formatTime(time.Now().UTC()), models.JobStatusDownloading, models.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	ids, err := collectSQLiteIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return ids, nil
}

func collectSQLiteIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getJob(ctx context.Context, q queryer, id uuid.UUID) (*models.Job, error) {
	j, err := scanSQLiteJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func currentStatus(ctx context.Context, q queryer, id uuid.UUID) (string, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

func writeClips(ctx context.Context, tx *sql.Tx, id uuid.UUID, clips []models.Clip, progress int) error {
	raw, err := json.Marshal(clips)
	if err != nil {
		return fmt.Errorf("encode clips: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET clips = ?, clip_count = ?, progress = ?, updated_at = ? WHERE id = ?`,
		string(raw), len(clips), progress, formatTime(time.Now().UTC()), id.String()); err != nil {
		return fmt.Errorf("write clips: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*models.Job, error) {
	var (
		j                    models.Job
		id, clips            string
		errMsg               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &j.SourceURL, &j.Title, &j.Status, &j.Progress, &j.ClipLength,
		&j.Language, &j.Style, &clips, &j.ClipCount, &errMsg, &j.WaveformURL,
		&j.SpriteURL, &j.Attempts, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if err := json.Unmarshal([]byte(clips), &j.Clips); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	if j.Clips == nil {
		j.Clips = []models.Clip{}
	}
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if j.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
