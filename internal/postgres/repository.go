package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maauso/viralclips/internal/project"
)

// Compile-time check that Repository implements project.Repository.
var _ project.Repository = (*Repository)(nil)

const foreignKeyViolation = "23503"

const (
	projectColumns = `id, owner_id, title, source_key, duration_preference, caption_style,
		status, COALESCE(error_message, ''), created_at, updated_at`
	clipColumns = `id, project_id, media_key, virality_score, rationale, transcript,
		start_time, end_time, created_at`
)

// Repository persists projects and clips in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateProject(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO projects (
			id, owner_id, title, source_key, duration_preference, caption_style,
			status, error_message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),$9,$10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OwnerID, p.Title, p.SourceKey, string(p.DurationPreference), p.CaptionStyle,
		string(p.Status), p.ErrorMessage, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *Repository) GetProject(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id=$1`

	p, err := scanProject(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdateProjectStatus(ctx context.Context, p *project.Project) error {
	query := `
		UPDATE projects SET
			status=$2, error_message=NULLIF($3, ''), updated_at=$4
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query, p.ID, string(p.Status), p.ErrorMessage, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

func (r *Repository) CreateClip(ctx context.Context, c *project.Clip) error {
	query := `
		INSERT INTO clips (
			id, project_id, media_key, virality_score, rationale, transcript,
			start_time, end_time, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.ProjectID, c.MediaKey, c.ViralityScore, c.Rationale, c.Transcript,
		c.StartTime, c.EndTime, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return project.ErrProjectNotFound
		}
		return fmt.Errorf("insert clip: %w", err)
	}
	return nil
}

func (r *Repository) GetClip(ctx context.Context, id string) (*project.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE id=$1`

	c, err := scanClip(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrClipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find clip by id: %w", err)
	}
	return c, nil
}

func (r *Repository) ListClips(ctx context.Context, projectID string) ([]*project.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE project_id=$1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	clips, err := pgx.CollectRows(rows, collectClip)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	return clips, nil
}

func (r *Repository) UpdateClipMedia(ctx context.Context, c *project.Clip) error {
	query := `UPDATE clips SET media_key=$2, start_time=$3, end_time=$4 WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query, c.ID, c.MediaKey, c.StartTime, c.EndTime)
	if err != nil {
		return fmt.Errorf("update clip media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrClipNotFound
	}
	return nil
}

func (r *Repository) DeleteClips(ctx context.Context, projectID string) ([]*project.Clip, error) {
	query := `DELETE FROM clips WHERE project_id=$1 RETURNING ` + clipColumns

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("delete clips: %w", err)
	}
	clips, err := pgx.CollectRows(rows, collectClip)
	if err != nil {
		return nil, fmt.Errorf("delete clips: %w", err)
	}
	return clips, nil
}

func scanProject(row pgx.Row) (*project.Project, error) {
	p := &project.Project{}
	var pref, status string
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.SourceKey, &pref, &p.CaptionStyle,
		&status, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.DurationPreference = project.ParseDurationPreference(pref)
	if p.Status, err = project.ParseStatus(status); err != nil {
		return nil, err
	}
	return p, nil
}

func scanClip(row pgx.Row) (*project.Clip, error) {
	c := &project.Clip{}
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.MediaKey, &c.ViralityScore, &c.Rationale, &c.Transcript,
		&c.StartTime, &c.EndTime, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func collectClip(row pgx.CollectableRow) (*project.Clip, error) {
	return scanClip(row)
}
