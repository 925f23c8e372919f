package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads a configuration file over the defaults, resolves derived paths
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, feederrors.NewParseError(path, 0, err)
	}

	return parse(path, data)
}

// Parse decodes YAML over the defaults, resolves and validates it.
func Parse(data []byte) (*Config, error) {
	return parse("config", data)
}

func parse(path string, data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, feederrors.NewParseError(path, extractLine(err), err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
