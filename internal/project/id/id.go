// Package id provides unique identifier generation for projects and clips.
package id

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when an identifier is not a valid UUID.
var ErrInvalidID = errors.New("id: invalid identifier")

// Generate creates a new unique identifier.
// Format: canonical UUIDv4, e.g. 9b2f6c1e-2d4a-4f0b-8d53-0c1f4b7e9a11
func Generate() string {
	return uuid.NewString()
}

// Validate returns ErrInvalidID if s is not a canonical UUID.
func Validate(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return nil
}
