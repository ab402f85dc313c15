package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"signal-lab/internal/domain"
)

// LoadEngineConfig reads a YAML engine configuration from path. Fields absent
// from the file keep their defaults. An empty path returns the defaults.
func LoadEngineConfig(path string) (domain.EngineConfig, error) {
	if path == "" {
		return domain.DefaultEngineConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("read engine config: %w", err)
	}
	cfg, err := ParseEngineConfig(data)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseEngineConfig decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func ParseEngineConfig(data []byte) (domain.EngineConfig, error) {
	cfg := domain.DefaultEngineConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return domain.EngineConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return domain.EngineConfig{}, err
	}
	return cfg, nil
}
