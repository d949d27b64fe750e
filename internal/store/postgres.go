package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

const jobColumns = `id, source_url, title, status, progress, clip_length, language, style,
	clips, clip_count, error_message, waveform_url, sprite_url, attempts, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
// Clips are embedded in the job row as a JSONB array.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	clips := job.Clips
	if clips == nil {
		clips = []models.Clip{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, source_url, title, status, progress, clip_length, language, style,
		   clips, clip_count, error_message, waveform_url, sprite_url, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.SourceURL, job.Title, job.Status, job.Progress, job.ClipLength, job.Language, job.Style,
		clips, len(clips), job.ErrorMessage, job.WaveformURL, job.SpriteURL, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListJobIDsByStatus(ctx context.Context, status string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	return collectIDs(rows)
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $2, progress = 5, error_message = NULL,
		   clips = '[]'::jsonb, clip_count = 0, waveform_url = '', sprite_url = '',
		   attempts = attempts + 1, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+jobColumns,
		id, models.JobStatusDownloading, time.Now().UTC(), models.TransitionSources(models.JobStatusDownloading)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.currentStatus(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	params := buildUpdate(opts)

	query := `UPDATE jobs SET updated_at = $2`
	args := []any{id, time.Now().UTC()}
	argIdx := 3

	set := func(col string, v any) {
		query += fmt.Sprintf(", %s = $%d", col, argIdx)
		args = append(args, v)
		argIdx++
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
		query += ", error_message = NULL"
	}
	if params.WaveformURL != nil {
		set("waveform_url", *params.WaveformURL)
	}
	if params.SpriteURL != nil {
		set("sprite_url", *params.SpriteURL)
	}

	query += " WHERE id = $1"
	if params.Status != nil {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, models.TransitionSources(*params.Status))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if params.Status == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, *params.Status)
}

func (s *PostgresStore) AppendClip(ctx context.Context, id uuid.UUID, clip models.Clip, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET clips = clips || $2::jsonb, clip_count = clip_count + 1,
		   progress = GREATEST(progress, $3), updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, []models.Clip{clip}, progress, time.Now().UTC(), models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("append clip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.currentStatus(ctx, id); err != nil {
			return err
		}
		return ErrStateConflict
	}
	return nil
}

func (s *PostgresStore) ReplaceClip(ctx context.Context, id uuid.UUID, clip models.Clip) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET clips = (
		   SELECT jsonb_agg(CASE WHEN elem->>'id' = $2 THEN $3::jsonb ELSE elem END ORDER BY idx)
		   FROM jsonb_array_elements(clips) WITH ORDINALITY AS t(elem, idx)
		 ), updated_at = $4
		 WHERE id = $1 AND clips @> jsonb_build_array(jsonb_build_object('id', $2::text))`,
		id, clip.ID.String(), clip, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace clip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailInterruptedJobs(ctx context.Context, msg string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = $1, progress = 0, error_message = $2, updated_at = $3
		 WHERE status = ANY($4)
		 RETURNING id`,
		models.JobStatusError, msg, time.Now().UTC(), []string{models.JobStatusDownloading, models.JobStatusProcessing})
	if err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return ids, nil
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) currentStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	if err := row.Scan(&j.ID, &j.SourceURL, &j.Title, &j.Status, &j.Progress, &j.ClipLength,
		&j.Language, &j.Style, &j.Clips, &j.ClipCount, &j.ErrorMessage, &j.WaveformURL,
		&j.SpriteURL, &j.Attempts, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if j.Clips == nil {
		j.Clips = []models.Clip{}
	}
	return &j, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
