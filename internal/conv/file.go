package conv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Load reads a convolution problem from a .yaml/.yml or .json file.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	var p Params
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	case ".json":
		err = json.Unmarshal(data, &p)
	default:
		return Params{}, fmt.Errorf("conv: unsupported file extension %q (expected .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err != nil {
		return Params{}, fmt.Errorf("conv: decode %s: %w", path, err)
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
