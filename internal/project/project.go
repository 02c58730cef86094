// Package project provides the Project and Clip aggregates tracked by the
// video pipeline, the status state machine that governs a pipeline run,
// and the repository port used to persist them.
package project

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maauso/viralclips/internal/project/id"
)

// Status represents the current state of a Project.
type Status string

const (
	// StatusPending indicates the project was created and is waiting for a run.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates a pipeline run is in progress.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates the most recent run finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the most recent run ended with an unrecovered error.
	StatusFailed Status = "FAILED"
)

// Static errors for project state handling.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("project: invalid state transition")
	// ErrInvalidStatus is returned when a status string is not one of the known values.
	ErrInvalidStatus = errors.New("project: invalid status")
	// ErrEmptyFailureMessage is returned when Fail is called without a message.
	ErrEmptyFailureMessage = errors.New("project: failure message must not be empty")
)

// validTransitions defines which state transitions are allowed.
// A redelivered or re-dispatched run re-enters PROCESSING from any state.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusProcessing},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a stored status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// DurationPreference is the target clip length handed to the analyzer.
type DurationPreference string

const (
	// DurationAuto lets the analyzer choose clip lengths.
	DurationAuto DurationPreference = "auto"
	// DurationShort asks for clips between 15 and 30 seconds.
	DurationShort DurationPreference = "30s"
	// DurationLong asks for clips between 45 and 60 seconds.
	DurationLong DurationPreference = "60s"
)

// ParseDurationPreference maps free text to a DurationPreference.
// Unknown values fall back to DurationAuto.
func ParseDurationPreference(s string) DurationPreference {
	switch p := DurationPreference(strings.ToLower(strings.TrimSpace(s))); p {
	case DurationShort, DurationLong:
		return p
	default:
		return DurationAuto
	}
}

// Project is one uploaded source video and the state of its pipeline runs.
type Project struct {
	// ID is the unique identifier for this project.
	ID string
	// OwnerID references the external identity that uploaded the source.
	OwnerID string
	// Title is a display name for the project.
	Title string
	// SourceKey is the blob-store key of the uploaded source video.
	// Legacy rows may hold an absolute URL instead.
	SourceKey string
	// DurationPreference is the requested clip length.
	DurationPreference DurationPreference
	// CaptionStyle is the default caption style for produced clips.
	CaptionStyle string
	// Status is the current project state.
	Status Status
	// ErrorMessage is set only when Status is FAILED.
	ErrorMessage string
	// CreatedAt is when the project was created.
	CreatedAt time.Time
	// UpdatedAt is when the project was last updated.
	UpdatedAt time.Time
}

// New creates a PENDING project for the given owner and source key.
func New(ownerID, sourceKey string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:                 id.Generate(),
		OwnerID:            ownerID,
		SourceKey:          sourceKey,
		DurationPreference: DurationAuto,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// TransitionTo attempts to change the project status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (p *Project) TransitionTo(status Status) error {
	if !canTransition(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Start begins a new run. Any error text from a previous run is cleared.
func (p *Project) Start() error {
	if err := p.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	p.ErrorMessage = ""
	return nil
}

// Complete marks the current run as successful.
func (p *Project) Complete() error {
	if err := p.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	p.ErrorMessage = ""
	return nil
}

// Fail marks the current run as failed with a non-empty message.
func (p *Project) Fail(msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ErrEmptyFailureMessage
	}
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.ErrorMessage = msg
	return nil
}

// Clone creates a copy of the project for safe reads.
func (p *Project) Clone() *Project {
	c := *p
	return &c
}
