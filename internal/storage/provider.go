// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for vault file operations.
//
// Delete carries soft-delete semantics: the note disappears from List and
// Read, but its pre-image is retained as a tombstone so a replicating
// backend can propagate the deletion instead of losing history.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to the
	// vault root), sorted by path.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete tombstones the file at path.
	Delete(path string) error
}
