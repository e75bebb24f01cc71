package vocabulary

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML vocabulary file and merges it over the defaults. Tables
// missing from the file keep their default contents.
func Load(path string) (*Vocabulary, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary file %q: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML vocabulary data and merges it over the defaults.
func Parse(data []byte) (*Vocabulary, error) {
	var override Vocabulary
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&override); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalid, err)
		}
	}

	merged := Merge(Default(), &override)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}
