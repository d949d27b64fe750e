package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/clipcutter/internal/store"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupPostgres spins up a Postgres container, runs migrations, and returns a store.
func setupPostgres(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clipcutter_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(store.DriverPostgres, connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return store.NewPostgresStore(pool)
}

func setupSQLite(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clipcutter.db")

	require.NoError(t, store.RunMigrations(store.DriverSQLite, path, migrationsDir()))

	s, err := store.OpenSQLite(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, setupSQLite)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	runStoreContract(t, setupPostgres)
}

func TestRunMigrations_UnknownDriver(t *testing.T) {
	err := store.RunMigrations("mysql", "x", migrationsDir())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	require.NoError(t, store.RunMigrations(store.DriverSQLite, path, migrationsDir()))
	require.NoError(t, store.RunMigrations(store.DriverSQLite, path, migrationsDir()))
}

func newJob(t *testing.T, createdAt time.Time) *models.Job {
	t.Helper()
	job, err := models.NewJob("https://www.youtube.com/watch?v="+uuid.NewString()[:8], 30, "", "")
	require.NoError(t, err)
	job.CreatedAt = createdAt.UTC().Truncate(time.Microsecond)
	job.UpdatedAt = job.CreatedAt
	return job
}

func clip(start, end int) models.Clip {
	c := models.Clip{ID: uuid.New(), Title: "Highlight", ViralScore: 80}
	_ = c.SetRange(start, end)
	return c
}

// runStoreContract exercises behavior every Store implementation must share.
func runStoreContract(t *testing.T, setup func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.SourceURL, got.SourceURL)
		assert.Equal(t, models.JobStatusQueued, got.Status)
		assert.Equal(t, 0, got.Progress)
		assert.Equal(t, "pt", got.Language)
		assert.Empty(t, got.Clips)
		assert.NotNil(t, got.Clips)
		assert.Nil(t, got.ErrorMessage)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

		assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicateKey)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := setup(t)
		_, err := s.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		s := setup(t)
		base := time.Now().Add(-time.Hour)
		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			job := newJob(t, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.CreateJob(ctx, job))
			ids = append(ids, job.ID)
		}

		jobs, err := s.ListJobs(ctx, 3)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, ids[4], jobs[0].ID)
		assert.Equal(t, ids[3], jobs[1].ID)
		assert.Equal(t, ids[2], jobs[2].ID)

		all, err := s.ListJobs(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("claim starts an attempt", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))

		claimed, err := s.ClaimJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusDownloading, claimed.Status)
		assert.Equal(t, 5, claimed.Progress)
		assert.Equal(t, 1, claimed.Attempts)

		_, err = s.ClaimJob(ctx, job.ID)
		assert.ErrorIs(t, err, store.ErrNotClaimable)

		_, err = s.ClaimJob(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ClaimJob(ctx, job.ID); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("full attempt lifecycle", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))
		_, err := s.ClaimJob(ctx, job.ID)
		require.NoError(t, err)

		require.NoError(t, s.UpdateJob(ctx, job.ID, store.WithTitle("Real title"), store.WithProgress(10)))
		require.NoError(t, s.UpdateJob(ctx, job.ID, store.WithStatus(models.JobStatusProcessing), store.WithProgress(20)))

		c1, c2 := clip(0, 30), clip(34, 64)
		require.NoError(t, s.AppendClip(ctx, job.ID, c1, 55))
		require.NoError(t, s.AppendClip(ctx, job.ID, c2, 90))

		mid, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "Real title", mid.Title)
		assert.Equal(t, 90, mid.Progress)
		assert.Equal(t, 2, mid.ClipCount)
		require.Len(t, mid.Clips, 2)
		assert.Equal(t, c1.ID, mid.Clips[0].ID)
		assert.Equal(t, c2.ID, mid.Clips[1].ID)

		require.NoError(t, s.UpdateJob(ctx, job.ID,
			store.WithWaveformURL("/media/w.png"), store.WithSpriteURL("/media/s.jpg")))
		require.NoError(t, s.UpdateJob(ctx, job.ID, store.WithStatus(models.JobStatusCompleted), store.WithProgress(100)))

		done, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, done.Status)
		assert.Equal(t, 100, done.Progress)
		assert.Equal(t, "/media/w.png", done.WaveformURL)

		// completed jobs accept no further clips
		assert.ErrorIs(t, s.AppendClip(ctx, job.ID, clip(0, 5), 95), store.ErrStateConflict)
	})

	t.Run("invalid transition rejected", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))

		err := s.UpdateJob(ctx, job.ID, store.WithStatus(models.JobStatusCompleted), store.WithProgress(100))
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, got.Status)
		assert.Equal(t, 0, got.Progress)

		assert.ErrorIs(t, s.UpdateJob(ctx, uuid.New(), store.WithProgress(1)), store.ErrNotFound)
	})

	t.Run("error then retry resets attempt state", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))
		_, err := s.ClaimJob(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.UpdateJob(ctx, job.ID, store.WithStatus(models.JobStatusProcessing), store.WithProgress(20)))
		require.NoError(t, s.AppendClip(ctx, job.ID, clip(0, 30), 55))
		require.NoError(t, s.UpdateJob(ctx, job.ID,
			store.WithStatus(models.JobStatusError), store.WithProgress(0), store.WithErrorMessage("ffmpeg exited with code 1")))

		failed, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, failed.ErrorMessage)
		assert.Equal(t, "ffmpeg exited with code 1", *failed.ErrorMessage)
		assert.Len(t, failed.Clips, 1)

		retried, err := s.ClaimJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, retried.Attempts)
		assert.Nil(t, retried.ErrorMessage)
		assert.Empty(t, retried.Clips)
		assert.Equal(t, 0, retried.ClipCount)
	})

	t.Run("replace clip in place", func(t *testing.T) {
		s := setup(t)
		job := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, job))
		_, err := s.ClaimJob(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.UpdateJob(ctx, job.ID, store.WithStatus(models.JobStatusProcessing)))
		a, b := clip(0, 30), clip(34, 64)
		require.NoError(t, s.AppendClip(ctx, job.ID, a, 55))
		require.NoError(t, s.AppendClip(ctx, job.ID, b, 90))

		b.Caption = "edited"
		require.NoError(t, b.SetRange(40, 60))
		require.NoError(t, s.ReplaceClip(ctx, job.ID, b))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, got.Clips, 2)
		assert.Equal(t, a, got.Clips[0])
		assert.Equal(t, b, got.Clips[1])
		assert.Equal(t, 20, got.Clips[1].Duration)

		assert.ErrorIs(t, s.ReplaceClip(ctx, job.ID, clip(0, 1)), store.ErrNotFound)
		assert.ErrorIs(t, s.ReplaceClip(ctx, uuid.New(), b), store.ErrNotFound)
	})

	t.Run("fail interrupted jobs", func(t *testing.T) {
		s := setup(t)
		queued := newJob(t, time.Now())
		running := newJob(t, time.Now())
		require.NoError(t, s.CreateJob(ctx, queued))
		require.NoError(t, s.CreateJob(ctx, running))
		_, err := s.ClaimJob(ctx, running.ID)
		require.NoError(t, err)

		failed, err := s.FailInterruptedJobs(ctx, "interrupted by restart")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{running.ID}, failed)

		got, err := s.GetJob(ctx, running.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusError, got.Status)
		assert.Equal(t, 0, got.Progress)

		ids, err := s.ListJobIDsByStatus(ctx, models.JobStatusQueued)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{queued.ID}, ids)

		// nothing left to fail
		failed, err = s.FailInterruptedJobs(ctx, "interrupted by restart")
		require.NoError(t, err)
		assert.Empty(t, failed)
	})
}
