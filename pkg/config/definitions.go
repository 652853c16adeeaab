package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// LoadDefinition reads one workflow definition JSON document and validates
// it. Definitions are consumed, never authored, by the engine; a rejected
// definition blocks execution from starting.
func LoadDefinition(path string) (*models.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	var definition models.Definition
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}

	if err := definition.Validate(); err != nil {
		return nil, err
	}

	return &definition, nil
}

// LoadDefinitionsDir loads every *.json definition in a directory, sorted
// by file name for deterministic registration order.
func LoadDefinitionsDir(dir string) ([]*models.Definition, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan definitions dir %s: %w", dir, err)
	}

	sort.Strings(paths)

	definitions := make([]*models.Definition, 0, len(paths))

	for _, path := range paths {
		definition, err := LoadDefinition(path)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	return definitions, nil
}
