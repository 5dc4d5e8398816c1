package output

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteRunConfig records the parameters of a run next to its results
func WriteRunConfig(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadRunConfig decodes a snapshot written by WriteRunConfig into v
func ReadRunConfig(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
