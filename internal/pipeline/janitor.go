package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/viralclips/internal/metrics"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/storage"
)

// ErrInvalidMaxAge is returned when a retention sweep is given a non-positive age.
var ErrInvalidMaxAge = errors.New("retention max age must be positive")

// Janitor deletes blob objects on request and sweeps stale raw uploads.
type Janitor struct {
	repo   project.Repository
	blobs  storage.BlobStore
	logger *slog.Logger
	now    func() time.Time
}

// NewJanitor creates a new Janitor.
func NewJanitor(deps Dependencies) *Janitor {
	return &Janitor{
		repo:   deps.Repo,
		blobs:  deps.Blobs,
		logger: deps.logger(),
		now:    time.Now,
	}
}

// DeleteFiles removes the given blob keys. Empty keys and absolute URLs are
// ignored. Returns the number of objects the store reported deleted.
func (j *Janitor) DeleteFiles(ctx context.Context, keys []string) (int, error) {
	filtered := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if !storage.IsBlobKey(k) {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		filtered = append(filtered, k)
	}
	if len(filtered) == 0 {
		return 0, nil
	}

	var deleted int
	err := runStage(ctx, "delete_files", func(ctx context.Context) error {
		var err error
		deleted, err = j.blobs.DeleteMany(ctx, filtered)
		return err
	})
	metrics.BlobsDeletedTotal.WithLabelValues("requested").Add(float64(deleted))

	if err != nil {
		j.logger.Warn("file deletion incomplete",
			slog.Int("requested", len(filtered)),
			slog.Int("deleted", deleted),
			slog.String("error", err.Error()),
		)
		return deleted, fmt.Errorf("delete files: %w", err)
	}
	j.logger.Info("files deleted", slog.Int("deleted", deleted))
	return deleted, nil
}

// RetentionSweep deletes raw uploads older than maxAgeHours and returns how
// many were removed. Produced clips are never swept.
func (j *Janitor) RetentionSweep(ctx context.Context, maxAgeHours int) (int, error) {
	if maxAgeHours <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMaxAge, maxAgeHours)
	}
	cutoff := j.now().Add(-time.Duration(maxAgeHours) * time.Hour)

	var keys []string
	err := runStage(ctx, "retention_list", func(ctx context.Context) error {
		var err error
		keys, err = j.blobs.ListOlderThan(ctx, storage.UploadsPrefix, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list stale uploads: %w", err)
	}
	if len(keys) == 0 {
		j.logger.Info("retention sweep found nothing to delete", slog.Time("cutoff", cutoff))
		return 0, nil
	}

	deleted, err := j.blobs.DeleteMany(ctx, keys)
	metrics.BlobsDeletedTotal.WithLabelValues("retention").Add(float64(deleted))
	if err != nil {
		j.logger.Warn("retention sweep incomplete",
			slog.Int("stale", len(keys)),
			slog.Int("deleted", deleted),
			slog.String("error", err.Error()),
		)
		return deleted, fmt.Errorf("delete stale uploads: %w", err)
	}

	j.logger.Info("retention sweep completed",
		slog.Int("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)
	return deleted, nil
}

// DeleteProject removes a project with its clips and then deletes the
// source and clip objects.
func (j *Janitor) DeleteProject(ctx context.Context, projectID string) error {
	p, err := j.repo.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	clips, err := j.repo.ListClips(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list clips of %s: %w", projectID, err)
	}

	keys := make([]string, 0, len(clips)+1)
	keys = append(keys, p.SourceKey)
	for _, c := range clips {
		keys = append(keys, c.MediaKey)
	}

	if err := j.repo.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	j.logger.Info("project deleted",
		slog.String("project_id", projectID),
		slog.Int("clips", len(clips)),
	)

	if _, err := j.DeleteFiles(ctx, keys); err != nil {
		metrics.CleanupFailuresTotal.WithLabelValues("delete_project_files").Inc()
		j.logger.Warn("project files not fully deleted",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
