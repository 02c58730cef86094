package project

import (
	"context"
	"errors"
)

// Static errors for repository lookups.
var (
	// ErrProjectNotFound is returned when a project cannot be found by ID.
	ErrProjectNotFound = errors.New("project not found")
	// ErrClipNotFound is returned when a clip cannot be found by ID.
	ErrClipNotFound = errors.New("clip not found")
)

// Repository defines the interface for project and clip persistence.
// Each method is a single atomic write or read.
type Repository interface {
	// CreateProject persists a new project.
	CreateProject(ctx context.Context, p *Project) error

	// GetProject retrieves a project by its unique identifier.
	// Returns ErrProjectNotFound if the project does not exist.
	GetProject(ctx context.Context, id string) (*Project, error)

	// UpdateProjectStatus writes the project's status and error message together.
	// Returns ErrProjectNotFound if the project does not exist.
	UpdateProjectStatus(ctx context.Context, p *Project) error

	// DeleteProject removes a project and, by composition, its clips.
	// Returns ErrProjectNotFound if the project does not exist.
	DeleteProject(ctx context.Context, id string) error

	// CreateClip inserts a new clip row.
	CreateClip(ctx context.Context, c *Clip) error

	// GetClip retrieves a clip by its unique identifier.
	// Returns ErrClipNotFound if the clip does not exist.
	GetClip(ctx context.Context, id string) (*Clip, error)

	// ListClips returns the clips of a project ordered by creation time.
	ListClips(ctx context.Context, projectID string) ([]*Clip, error)

	// UpdateClipMedia writes a clip's media key and bounds together.
	// Returns ErrClipNotFound if the clip does not exist.
	UpdateClipMedia(ctx context.Context, c *Clip) error

	// DeleteClips removes every clip of a project and returns the removed rows.
	DeleteClips(ctx context.Context, projectID string) ([]*Clip, error)
}
