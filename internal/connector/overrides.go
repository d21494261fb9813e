package connector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadOverrides reads a connector overrides file: a YAML map of
// connector name to enabled flag under a top-level "connectors" key.
// Missing names keep their default state.
func LoadOverrides(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: read overrides %s", path)
	}

	var wrapper struct {
		Connectors map[string]bool `yaml:"connectors"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "connector: parse overrides %s", path)
	}
	return wrapper.Connectors, nil
}
