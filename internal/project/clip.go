package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/maauso/viralclips/internal/project/id"
)

// ErrInvalidBounds is returned when a clip's end time is not after its start time.
var ErrInvalidBounds = errors.New("project: clip end time must be after start time")

// Clip is one produced vertical segment of a Project's source video.
type Clip struct {
	// ID is the unique identifier for this clip.
	ID string
	// ProjectID references the parent project.
	ProjectID string
	// MediaKey is the blob-store key of the produced clip file.
	MediaKey string
	// ViralityScore is the analyzer's rank for the segment.
	ViralityScore *int
	// Rationale is the analyzer's explanation for picking the segment.
	Rationale *string
	// Transcript is the caption track (SubRip text) burned into the media.
	Transcript *string
	// StartTime is the trim start in seconds within the source.
	StartTime *float64
	// EndTime is the trim end in seconds within the source.
	EndTime *float64
	// CreatedAt is when the clip was created.
	CreatedAt time.Time
}

// NewClip creates a clip for the given project, cut from [start, end].
func NewClip(projectID, mediaKey string, start, end float64) (*Clip, error) {
	c := &Clip{
		ID:        id.Generate(),
		ProjectID: projectID,
		MediaKey:  mediaKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.SetBounds(start, end); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBounds updates the trim bounds. End must be after start.
func (c *Clip) SetBounds(start, end float64) error {
	if end <= start {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidBounds, start, end)
	}
	c.StartTime = &start
	c.EndTime = &end
	return nil
}

// Clone creates a deep copy of the clip for safe reads.
func (c *Clip) Clone() *Clip {
	cp := *c
	if c.ViralityScore != nil {
		v := *c.ViralityScore
		cp.ViralityScore = &v
	}
	if c.Rationale != nil {
		v := *c.Rationale
		cp.Rationale = &v
	}
	if c.Transcript != nil {
		v := *c.Transcript
		cp.Transcript = &v
	}
	if c.StartTime != nil {
		v := *c.StartTime
		cp.StartTime = &v
	}
	if c.EndTime != nil {
		v := *c.EndTime
		cp.EndTime = &v
	}
	return &cp
}
