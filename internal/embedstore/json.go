package embedstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

func loadJSON(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	// A bare matrix is accepted as well as the full document.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var vectors [][]float32
		if err := json.Unmarshal(trimmed, &vectors); err != nil {
			return nil, err
		}
		return &Store{Vectors: vectors}, nil
	}
	var s Store
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveJSON(path string, s *Store) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
