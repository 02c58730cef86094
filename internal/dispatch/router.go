package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/viralclips/internal/metrics"
	"github.com/maauso/viralclips/internal/pipeline"
	"github.com/maauso/viralclips/internal/project"
)

// VideoRunner runs the primary pipeline.
type VideoRunner interface {
	RunVideo(ctx context.Context, projectID string) error
}

// BurnRunner runs the re-burn pipeline.
type BurnRunner interface {
	RunBurn(ctx context.Context, req pipeline.BurnRequest) error
}

// Cleaner runs blob cleanup tasks.
type Cleaner interface {
	DeleteFiles(ctx context.Context, keys []string) (int, error)
	RetentionSweep(ctx context.Context, maxAgeHours int) (int, error)
}

// Router decodes task messages and invokes the matching pipeline operation.
//
// A nil return acks the message. ErrMalformedTask dead-letters it. Any
// other error requeues it with backoff.
type Router struct {
	codec   *Codec
	video   VideoRunner
	burn    BurnRunner
	cleaner Cleaner
	logger  *slog.Logger
}

// NewRouter creates a new Router.
func NewRouter(codec *Codec, video VideoRunner, burn BurnRunner, cleaner Cleaner, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		codec:   codec,
		video:   video,
		burn:    burn,
		cleaner: cleaner,
		logger:  logger,
	}
}

// Handle processes one message body.
func (r *Router) Handle(ctx context.Context, body []byte) error {
	env, err := r.codec.Decode(body)
	if err != nil {
		metrics.TasksTotal.WithLabelValues("unknown", "malformed").Inc()
		return err
	}

	err = r.route(ctx, env)
	switch {
	case err == nil:
		metrics.TasksTotal.WithLabelValues(string(env.Kind), "ok").Inc()
	case errors.Is(err, ErrMalformedTask):
		metrics.TasksTotal.WithLabelValues(string(env.Kind), "malformed").Inc()
	default:
		metrics.TasksTotal.WithLabelValues(string(env.Kind), "retry").Inc()
	}
	return err
}

func (r *Router) route(ctx context.Context, env Envelope) error {
	switch env.Kind {
	case KindVideo:
		var t VideoTask
		if err := r.codec.DecodePayload(env, &t); err != nil {
			return err
		}
		return r.handleVideo(ctx, t)

	case KindBurn:
		var t BurnTask
		if err := r.codec.DecodePayload(env, &t); err != nil {
			return err
		}
		return r.handleBurn(ctx, t)

	case KindDeleteFiles:
		var t DeleteFilesTask
		if err := r.codec.DecodePayload(env, &t); err != nil {
			return err
		}
		if _, err := r.cleaner.DeleteFiles(ctx, t.Keys); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		return nil

	case KindRetentionSweep:
		var t RetentionSweepTask
		if err := r.codec.DecodePayload(env, &t); err != nil {
			return err
		}
		if _, err := r.cleaner.RetentionSweep(ctx, t.MaxAgeHours); err != nil {
			return fmt.Errorf("retention sweep: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %w: %q", ErrMalformedTask, ErrUnknownKind, env.Kind)
	}
}

func (r *Router) handleVideo(ctx context.Context, t VideoTask) error {
	err := r.video.RunVideo(ctx, t.ProjectID)
	if err == nil {
		return nil
	}
	// Nothing to retry once the project is gone.
	if errors.Is(err, project.ErrProjectNotFound) {
		r.logger.Warn("dropping video task for missing project",
			slog.String("project_id", t.ProjectID),
		)
		return nil
	}
	return fmt.Errorf("run video pipeline: %w", err)
}

// handleBurn acks every outcome. A failed re-burn leaves the clip unchanged.
func (r *Router) handleBurn(ctx context.Context, t BurnTask) error {
	err := r.burn.RunBurn(ctx, pipeline.BurnRequest{
		ClipID: t.ClipID,
		Start:  t.StartTime,
		End:    t.EndTime,
		Style:  t.StyleName,
	})
	if err != nil {
		r.logger.Info("re-burn task finished without changes",
			slog.String("clip_id", t.ClipID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
