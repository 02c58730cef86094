package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maauso/viralclips/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// newTestPool starts a PostgreSQL container and applies the migrations.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("VIRALCLIPS_INTEGRATION") == "" {
		t.Skip("set VIRALCLIPS_INTEGRATION=1 to run postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("viralclips"),
		tcpostgres.WithUsername("viralclips"),
		tcpostgres.WithPassword("viralclips"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"001_init.sql"}, applied)
	return pool
}

func TestRepository(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		applied, err := Migrate(ctx, pool, nil)
		require.NoError(t, err)
		assert.Empty(t, applied)
	})

	t.Run("project round trip and status updates", func(t *testing.T) {
		p := project.New("owner-1", "uploads/u/a.mp4")
		p.Title = "Podcast 12"
		p.DurationPreference = project.DurationShort
		p.CaptionStyle = "Neon"
		require.NoError(t, repo.CreateProject(ctx, p))

		got, err := repo.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.OwnerID, got.OwnerID)
		assert.Equal(t, "Podcast 12", got.Title)
		assert.Equal(t, project.DurationShort, got.DurationPreference)
		assert.Equal(t, "Neon", got.CaptionStyle)
		assert.Equal(t, project.StatusPending, got.Status)
		assert.Empty(t, got.ErrorMessage)

		require.NoError(t, got.Start())
		require.NoError(t, got.Fail("transcode failed"))
		require.NoError(t, repo.UpdateProjectStatus(ctx, got))

		failed, err := repo.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, project.StatusFailed, failed.Status)
		assert.Equal(t, "transcode failed", failed.ErrorMessage)

		require.NoError(t, failed.Start())
		require.NoError(t, repo.UpdateProjectStatus(ctx, failed))

		restarted, err := repo.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, project.StatusProcessing, restarted.Status)
		assert.Empty(t, restarted.ErrorMessage)
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := repo.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, project.ErrProjectNotFound)

		err = repo.UpdateProjectStatus(ctx, &project.Project{ID: "missing", Status: project.StatusProcessing})
		assert.ErrorIs(t, err, project.ErrProjectNotFound)

		assert.ErrorIs(t, repo.DeleteProject(ctx, "missing"), project.ErrProjectNotFound)

		_, err = repo.GetClip(ctx, "missing")
		assert.ErrorIs(t, err, project.ErrClipNotFound)

		err = repo.UpdateClipMedia(ctx, &project.Clip{ID: "missing", MediaKey: "clips/x.mp4"})
		assert.ErrorIs(t, err, project.ErrClipNotFound)

		c, err := project.NewClip("missing", "clips/x.mp4", 0, 1)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.CreateClip(ctx, c), project.ErrProjectNotFound)
	})

	t.Run("clips", func(t *testing.T) {
		p := project.New("owner-2", "uploads/u/b.mp4")
		require.NoError(t, repo.CreateProject(ctx, p))

		base := time.Now().UTC().Truncate(time.Millisecond)
		first, err := project.NewClip(p.ID, "clips/"+p.ID+"/1.mp4", 12.5, 40)
		require.NoError(t, err)
		first.CreatedAt = base
		score, rationale, transcript := 87, "strong hook", "1\n00:00:00,000 --> 00:00:01,000\nHi\n"
		first.ViralityScore = &score
		first.Rationale = &rationale
		first.Transcript = &transcript
		require.NoError(t, repo.CreateClip(ctx, first))

		second := &project.Clip{ID: "clip-no-bounds", ProjectID: p.ID, MediaKey: "clips/legacy.mp4", CreatedAt: base.Add(time.Second)}
		require.NoError(t, repo.CreateClip(ctx, second))

		clips, err := repo.ListClips(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, clips, 2)
		assert.Equal(t, first.ID, clips[0].ID)
		assert.Equal(t, 87, *clips[0].ViralityScore)
		assert.Equal(t, "strong hook", *clips[0].Rationale)
		assert.Equal(t, transcript, *clips[0].Transcript)
		assert.InDelta(t, 12.5, *clips[0].StartTime, 1e-9)
		assert.Nil(t, clips[1].StartTime)
		assert.Nil(t, clips[1].ViralityScore)

		require.NoError(t, second.SetBounds(3, 9))
		second.MediaKey = "clips/" + p.ID + "/" + second.ID + "/new.mp4"
		require.NoError(t, repo.UpdateClipMedia(ctx, second))

		got, err := repo.GetClip(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, second.MediaKey, got.MediaKey)
		assert.InDelta(t, 3.0, *got.StartTime, 1e-9)
		assert.InDelta(t, 9.0, *got.EndTime, 1e-9)

		removed, err := repo.DeleteClips(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		clips, err = repo.ListClips(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, clips)
	})

	t.Run("deleting a project cascades to clips", func(t *testing.T) {
		p := project.New("owner-3", "uploads/u/c.mp4")
		require.NoError(t, repo.CreateProject(ctx, p))
		c, err := project.NewClip(p.ID, "clips/"+p.ID+"/1.mp4", 0, 10)
		require.NoError(t, err)
		require.NoError(t, repo.CreateClip(ctx, c))

		require.NoError(t, repo.DeleteProject(ctx, p.ID))

		_, err = repo.GetClip(ctx, c.ID)
		assert.ErrorIs(t, err, project.ErrClipNotFound)
	})
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}
