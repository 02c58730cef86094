package project

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses maps with RWMutex for thread-safe access.
// Suitable for development and testing; the postgres package provides the
// persistent implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]*Project
	clips    map[string]*Clip
	// seq records insertion order to break CreatedAt ties.
	seq     map[string]uint64
	nextSeq uint64
}

// NewMemoryRepository creates a new in-memory project repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects: make(map[string]*Project),
		clips:    make(map[string]*Clip),
		seq:      make(map[string]uint64),
	}
}

// CreateProject stores a clone of the project.
func (r *MemoryRepository) CreateProject(_ context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p.Clone()
	return nil
}

// GetProject returns a clone to prevent external mutations.
func (r *MemoryRepository) GetProject(_ context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p.Clone(), nil
}

// UpdateProjectStatus copies status, error message and update time.
func (r *MemoryRepository) UpdateProjectStatus(_ context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.projects[p.ID]
	if !ok {
		return ErrProjectNotFound
	}
	stored.Status = p.Status
	stored.ErrorMessage = p.ErrorMessage
	stored.UpdatedAt = p.UpdatedAt
	return nil
}

// DeleteProject removes the project and its clips.
func (r *MemoryRepository) DeleteProject(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrProjectNotFound
	}
	delete(r.projects, id)
	for clipID, c := range r.clips {
		if c.ProjectID == id {
			delete(r.clips, clipID)
			delete(r.seq, clipID)
		}
	}
	return nil
}

// CreateClip stores a clone of the clip. The parent project must exist.
func (r *MemoryRepository) CreateClip(_ context.Context, c *Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[c.ProjectID]; !ok {
		return ErrProjectNotFound
	}
	if _, exists := r.clips[c.ID]; !exists {
		r.nextSeq++
		r.seq[c.ID] = r.nextSeq
	}
	r.clips[c.ID] = c.Clone()
	return nil
}

// GetClip returns a clone to prevent external mutations.
func (r *MemoryRepository) GetClip(_ context.Context, id string) (*Clip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clips[id]
	if !ok {
		return nil, ErrClipNotFound
	}
	return c.Clone(), nil
}

// ListClips returns clones of the project's clips, oldest first.
func (r *MemoryRepository) ListClips(_ context.Context, projectID string) ([]*Clip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Clip, 0)
	for _, c := range r.clips {
		if c.ProjectID == projectID {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return r.seq[result[i].ID] < r.seq[result[j].ID]
	})
	return result, nil
}

// UpdateClipMedia copies the media key and bounds.
func (r *MemoryRepository) UpdateClipMedia(_ context.Context, c *Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.clips[c.ID]
	if !ok {
		return ErrClipNotFound
	}
	updated := c.Clone()
	stored.MediaKey = updated.MediaKey
	stored.StartTime = updated.StartTime
	stored.EndTime = updated.EndTime
	return nil
}

// DeleteClips removes every clip of the project.
func (r *MemoryRepository) DeleteClips(_ context.Context, projectID string) ([]*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]*Clip, 0)
	for clipID, c := range r.clips {
		if c.ProjectID == projectID {
			removed = append(removed, c)
			delete(r.clips, clipID)
			delete(r.seq, clipID)
		}
	}
	return removed, nil
}
