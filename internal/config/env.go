package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// EnvLoader provides type-safe environment variable loading with validation
type EnvLoader struct {
	prefix string
	vars   map[string]string
}

// NewEnvLoader creates a new environment variable loader with the given prefix
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix: prefix,
		vars:   make(map[string]string),
	}
}

// LoadAll loads all environment variables with the configured prefix
func (e *EnvLoader) LoadAll() {
	for _, env := range os.Environ() {
		if parts := strings.SplitN(env, "=", 2); len(parts) == 2 {
			key := parts[0]
			if strings.HasPrefix(key, e.prefix) {
				e.vars[key] = parts[1]
			}
		}
	}
}

// GetString returns a string value from environment variables
func (e *EnvLoader) GetString(key string, defaultValue string) string {
	fullKey := e.prefix + key
	if val, ok := e.vars[fullKey]; ok {
		return val
	}
	return defaultValue
}

// GetInt returns an integer value from environment variables
func (e *EnvLoader) GetInt(key string, defaultValue int) (int, error) {
	if val := e.GetString(key, ""); val != "" {
		return strconv.Atoi(val)
	}
	return defaultValue, nil
}

// GetInt64 returns an int64 value from environment variables
func (e *EnvLoader) GetInt64(key string, defaultValue int64) (int64, error) {
	if val := e.GetString(key, ""); val != "" {
		return strconv.ParseInt(val, 10, 64)
	}
	return defaultValue, nil
}

// GetUint64 returns a uint64 value from environment variables
func (e *EnvLoader) GetUint64(key string, defaultValue uint64) (uint64, error) {
	if val := e.GetString(key, ""); val != "" {
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid uint64 value for %s: %w", key, err)
		}
		return n, nil
	}
	return defaultValue, nil
}

// GetDuration returns a duration value from environment variables
func (e *EnvLoader) GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if val := e.GetString(key, ""); val != "" {
		return time.ParseDuration(val)
	}
	return defaultValue, nil
}

// Validate checks if a value meets certain validation criteria
type Validate func(string) error

// GetStringValidated returns a validated string value from environment variables
func (e *EnvLoader) GetStringValidated(key string, defaultValue string, validators ...Validate) (string, error) {
	val := e.GetString(key, defaultValue)
	for _, validate := range validators {
		if err := validate(val); err != nil {
			return "", fmt.Errorf("validation failed for %s: %w", key, err)
		}
	}
	return val, nil
}

// Set overrides a variable, as if it were present in the environment
func (e *EnvLoader) Set(key, value string) {
	e.vars[e.prefix+key] = value
}

// Common validators
var (
	ValidateNotEmpty = func(val string) error {
		if val == "" {
			return fmt.Errorf("value cannot be empty")
		}
		return nil
	}

	ValidateLogLevel = func(val string) error {
		if _, err := logrus.ParseLevel(val); err != nil {
			return fmt.Errorf("invalid log level %q", val)
		}
		return nil
	}

	ValidateLogFormat = func(val string) error {
		if val != "text" && val != "json" {
			return fmt.Errorf("log format must be text or json, got %q", val)
		}
		return nil
	}

	ValidateVersion = func(val string) error {
		if _, err := version.NewVersion(val); err != nil {
			return fmt.Errorf("invalid version %q: %w", val, err)
		}
		return nil
	}
)
