package kbindex

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSnapshot reads a JSON array of embedded passages from disk.
// The file is the output of the external ingestion pipeline.
func LoadSnapshot(path string) ([]Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base snapshot %s: %w", path, err)
	}

	var passages []Passage
	if err := json.Unmarshal(data, &passages); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base snapshot %s: %w", path, err)
	}

	for i, p := range passages {
		if p.ID == "" {
			return nil, fmt.Errorf("snapshot passage %d has no id", i)
		}
		if len(p.Embedding) == 0 {
			return nil, fmt.Errorf("snapshot passage %s has no embedding", p.ID)
		}
	}
	return passages, nil
}
