package tunable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Load reads tunables from a .yaml/.yml or .json file. The document is
// either a list of tunables or a single one. Every entry is validated.
func Load(path string) ([]Tunable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []Tunable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		list, err = decodeYAML(data)
	case ".json":
		list, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("tunable: unsupported file extension %q (expected .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("tunable: decode %s: %w", path, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s holds no tunables", ErrInvalid, path)
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
	}
	return list, nil
}

func decodeYAML(data []byte) ([]Tunable, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var list []Tunable
		err := node.Decode(&list)
		return list, err
	}
	var one Tunable
	if err := node.Decode(&one); err != nil {
		return nil, err
	}
	return []Tunable{one}, nil
}

func decodeJSON(data []byte) ([]Tunable, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Tunable
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}
	var one Tunable
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []Tunable{one}, nil
}
