// Package config loads YAML or TOML configuration files with environment
// variable expansion and optional validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that check themselves
// after decoding.
type Validator interface {
	Validate() error
}

type decodeFunc func(data string, target any) error

func decodeYAML(data string, target any) error {
	return yaml.Unmarshal([]byte(data), target)
}

func decodeTOML(data string, target any) error {
	md, err := toml.Decode(data, target)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys: %v", undecoded)
	}
	return nil
}

// decoderFor picks the format by file extension. Anything that is not
// .toml is read as YAML.
func decoderFor(filename string) decodeFunc {
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		return decodeTOML
	}
	return decodeYAML
}

// Load reads filename, expands ${VAR} references from the environment,
// decodes it into target and validates the result when target implements
// Validator.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", filename, err)
	}

	if err := decoderFor(filename)(os.ExpandEnv(string(data)), target); err != nil {
		return fmt.Errorf("config: parse %s: %w", filename, err)
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validation failed: %w", err)
		}
	}
	return nil
}

// LoadWithDefaults loads filename, or defaultFile when filename does not
// exist.
func LoadWithDefaults[T any](filename, defaultFile string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if defaultFile != "" {
			return Load(defaultFile, target)
		}
		return fmt.Errorf("config: file not found: %s", filename)
	}
	return Load(filename, target)
}
