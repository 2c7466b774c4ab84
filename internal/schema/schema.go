// Package schema loads the model registry from a YAML models file.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/starford/quill/internal/models"
)

// File is the on-disk layout of a models file.
type File struct {
	Models []models.Model `yaml:"models"`
}

// Parse decodes a models file into a registry. Model definitions are not
// validated beyond YAML well-formedness.
func Parse(data []byte) (models.Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema: parse models: %w", err)
	}
	return models.NewRegistry(f.Models...), nil
}

// Source supplies a registry for one call.
type Source interface {
	Registry() (models.Registry, error)
}

// FileSource re-reads a models file on every call so edits take effect
// without a restart.
type FileSource struct {
	path string
}

// NewFileSource returns a Source backed by the models file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Registry reads and parses the models file.
func (s *FileSource) Registry() (models.Registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", s.path, err)
	}
	return Parse(data)
}

// Static serves a fixed registry.
type Static models.Registry

// Registry returns the fixed registry.
func (s Static) Registry() (models.Registry, error) {
	return models.Registry(s), nil
}
