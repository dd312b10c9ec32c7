package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads the configuration file at path and decodes it on top of
// Default(). The format is chosen by extension (.json, .toml, .yaml/.yml);
// any other extension is tried as JSON first and TOML second.
// The returned Config is not validated.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read configuration file", Err: err}
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := decodeJSON(data, &cfg); err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse JSON config", Err: err}
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse TOML config", Err: err}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse YAML config", Err: err}
		}
	default:
		jsonErr := decodeJSON(data, &cfg)
		if jsonErr == nil {
			break
		}
		cfg = Default()
		if _, tomlErr := toml.Decode(string(data), &cfg); tomlErr != nil {
			return nil, &ConfigError{
				FilePath: path,
				Message:  fmt.Sprintf("failed to auto-detect and parse config (JSON error: %v; TOML error: %v)", jsonErr, tomlErr),
			}
		}
	}
	return &cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}
