package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Workspace hands out per-run scratch directories under a root directory.
// Each run acquires its own Scratch and releases it on every exit path, so
// no temporary file outlives the run that created it.
type Workspace struct {
	root string
}

// NewWorkspace creates a new Workspace instance.
// If root is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "viralclips")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &Workspace{root: root}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Acquire creates a uniquely named scratch directory for one run.
// The caller must Release it, typically with defer.
func (w *Workspace) Acquire(ctx context.Context, label string) (*Scratch, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := os.MkdirTemp(w.root, sanitizeLabel(label)+"_*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Scratch is a run-scoped temporary directory.
type Scratch struct {
	dir string
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// Path returns a path for name inside the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix;
// its extension is preserved so tools can sniff the container format.
func (s *Scratch) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	f, err := os.CreateTemp(s.dir, strings.TrimSuffix(base, ext)+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// Remove deletes a single file. A missing file is not an error.
func (s *Scratch) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %s: %w", path, err)
	}
	return nil
}

// Release removes the scratch directory and everything in it.
// Calling Release more than once is safe.
func (s *Scratch) Release() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch directory %s: %w", s.dir, err)
	}
	return nil
}

func sanitizeLabel(label string) string {
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, label)
	if label == "" {
		return "run"
	}
	return label
}
