// Package embedstore persists the precomputed corpus embeddings.
//
// Two formats are supported: a JSON document and a bbolt database. Both
// keep vector i aligned with corpus passage i.
package embedstore

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Format names.
const (
	FormatJSON = "json"
	FormatBolt = "bolt"
)

// Store is a dense matrix of embeddings, one row per corpus passage.
type Store struct {
	Model     string      `json:"model,omitempty"`
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// Len returns the number of vectors.
func (s *Store) Len() int { return len(s.Vectors) }

// Validate checks that the store is non-empty, rectangular and finite.
func (s *Store) Validate() error {
	if len(s.Vectors) == 0 {
		return errors.New("embedding store is empty")
	}
	dim := s.Dimension
	if dim == 0 {
		dim = len(s.Vectors[0])
	}
	if dim <= 0 {
		return errors.New("embedding dimension is zero")
	}
	for i, v := range s.Vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("vector %d contains a non-finite value", i)
			}
		}
	}
	s.Dimension = dim
	return nil
}

// ResolveFormat returns format, or infers it from the file extension when
// format is empty.
func ResolveFormat(path, format string) (string, error) {
	if format != "" {
		switch format {
		case FormatJSON, FormatBolt:
			return format, nil
		}
		return "", fmt.Errorf("unknown embedding store format %q", format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".db", ".bolt":
		return FormatBolt, nil
	}
	return "", fmt.Errorf("cannot infer embedding store format from %q", path)
}

// Load reads and validates a store.
func Load(path, format string) (*Store, error) {
	f, err := ResolveFormat(path, format)
	if err != nil {
		return nil, err
	}
	var s *Store
	switch f {
	case FormatJSON:
		s, err = loadJSON(path)
	case FormatBolt:
		s, err = loadBolt(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings at %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load embeddings at %s: %w", path, err)
	}
	return s, nil
}

// Save validates and writes a store, replacing any existing file.
func Save(path, format string, s *Store) error {
	f, err := ResolveFormat(path, format)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	switch f {
	case FormatJSON:
		return saveJSON(path, s)
	default:
		return saveBolt(path, s)
	}
}
