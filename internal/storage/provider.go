// Package storage defines the content tree file-system abstraction.
package storage

import "github.com/starford/quill/internal/models"

// Provider is the interface for content file operations. Paths are slash
// separated and relative to the content root.
type Provider interface {
	// List returns metadata for every regular file under dir without reading
	// it, so Checksum is empty. Dot-files and in-flight temp files are
	// skipped. A missing dir yields no files.
	List(dir string) ([]models.FileMetadata, error)
	// Stat returns metadata for one file, checksum included.
	Stat(path string) (*models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
