// Package dispatch moves pipeline work through RabbitMQ: task envelopes
// and their validation, a publisher used by the API and the scheduler, a
// consumer worker pool, and the router that invokes the pipeline.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind names a task type. It is also the routing key suffix.
type Kind string

// Task kinds.
const (
	KindVideo          Kind = "video"
	KindBurn           Kind = "burn"
	KindDeleteFiles    Kind = "delete_files"
	KindRetentionSweep Kind = "retention_sweep"
)

// Static errors for task decoding.
var (
	// ErrMalformedTask is returned when a message cannot be decoded or fails validation.
	// Such messages are dead-lettered instead of retried.
	ErrMalformedTask = errors.New("dispatch: malformed task")
	// ErrUnknownKind is returned for a task kind without a handler.
	ErrUnknownKind = errors.New("dispatch: unknown task kind")
)

// Envelope is the message body published for every task.
type Envelope struct {
	Kind    Kind            `json:"kind" validate:"required,oneof=video burn delete_files retention_sweep"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// VideoTask runs the primary pipeline for a project.
type VideoTask struct {
	ProjectID string `json:"project_id" validate:"required"`
}

// BurnTask regenerates one clip.
type BurnTask struct {
	ClipID    string   `json:"clip_id" validate:"required"`
	StartTime *float64 `json:"start_time,omitempty" validate:"omitempty,gte=0"`
	EndTime   *float64 `json:"end_time,omitempty" validate:"omitempty,gte=0"`
	StyleName string   `json:"style_name,omitempty" validate:"omitempty,max=64"`
}

// DeleteFilesTask removes blob objects.
type DeleteFilesTask struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

// RetentionSweepTask deletes raw uploads older than MaxAgeHours.
type RetentionSweepTask struct {
	MaxAgeHours int `json:"max_age_hours" validate:"required,gt=0"`
}

// kindOf returns the Kind for a known task payload type.
func kindOf(task any) (Kind, error) {
	switch task.(type) {
	case VideoTask, *VideoTask:
		return KindVideo, nil
	case BurnTask, *BurnTask:
		return KindBurn, nil
	case DeleteFilesTask, *DeleteFilesTask:
		return KindDeleteFiles, nil
	case RetentionSweepTask, *RetentionSweepTask:
		return KindRetentionSweep, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownKind, task)
	}
}

// Codec encodes and validates task messages.
type Codec struct {
	validate *validator.Validate
}

// NewCodec creates a new Codec.
func NewCodec() *Codec {
	return &Codec{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Encode validates task and wraps it in an Envelope.
func (c *Codec) Encode(task any) (Kind, []byte, error) {
	kind, err := kindOf(task)
	if err != nil {
		return "", nil, err
	}
	if err := c.validate.Struct(task); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	body, err := json.Marshal(Envelope{Kind: kind, Payload: payload})
	if err != nil {
		return "", nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return kind, body, nil
}

// Decode parses an Envelope.
func (c *Codec) Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	if err := c.validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	return env, nil
}

// DecodePayload unmarshals and validates the envelope payload into dst.
func (c *Codec) DecodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrMalformedTask, env.Kind, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrMalformedTask, env.Kind, err)
	}
	return nil
}
