// Package storage defines the annotation library file-system abstraction.
package storage

import "time"

// DocumentMeta is the file-level metadata of one annotation document.
type DocumentMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for library file operations. All paths are
// relative to the library root.
type Provider interface {
	// List returns metadata for every .json document under dir.
	List(dir string) ([]DocumentMeta, error)
	// Read returns the raw bytes of the document at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the document at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// WithLock runs fn while holding an exclusive advisory lock on path,
	// serializing read-modify-write cycles across processes.
	WithLock(path string, fn func() error) error
}
