package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a model document from a YAML file. Deployments whose form
// tables carry extended columns supply their own model; everything else uses
// Builtin.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema model: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML model document.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode schema model: %w", err)
	}
	if len(m.Tables) == 0 {
		return nil, fmt.Errorf("schema model defines no tables")
	}
	if err := m.finalize(); err != nil {
		return nil, err
	}
	return &m, nil
}
