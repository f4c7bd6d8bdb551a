package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by GetValue and SetValue for keys outside the
// config schema.
var ErrUnknownKey = errors.New("unknown config key")

// ListValues flattens cfg into dot-separated keys, masking secrets when
// mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	flat := Flatten(toMap(cfg))
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the effective value of key, including defaults and
// environment overrides.
func GetValue(path, key string) (any, error) {
	if !knownKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, err := open(path)
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return "", nil
	}
	return v.Get(key), nil
}

// SetValue writes key=value into the config file. The value is parsed
// according to the type of the key's default.
func SetValue(path, key, value string) error {
	if !knownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	parsed, err := parseValue(key, value)
	if err != nil {
		return err
	}

	if _, err := open(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	file := map[string]any{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	flat := Flatten(file)
	flat[key] = parsed

	out, err := yaml.Marshal(Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// knownKey accepts every default key plus the open-ended project and
// prompt maps.
func knownKey(key string) bool {
	if _, ok := Flatten(toMap(Defaults()))[key]; ok {
		return true
	}
	switch {
	case strings.HasPrefix(key, "prompts."):
		return len(key) > len("prompts.")
	case strings.HasPrefix(key, "projects.") && strings.HasSuffix(key, ".repository"):
		return strings.Count(key, ".") == 2
	}
	return false
}

func parseValue(key, value string) (any, error) {
	def, ok := Flatten(toMap(Defaults()))[key]
	if !ok {
		return value, nil
	}
	switch d := def.(type) {
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer: %w", key, err)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false: %w", key, err)
		}
		return b, nil
	case string:
		if _, err := time.ParseDuration(d); err == nil {
			if _, err := time.ParseDuration(value); err != nil {
				return nil, fmt.Errorf("%s: expected a duration: %w", key, err)
			}
		}
	}
	return value, nil
}
