package config

import (
	"os"
	"strings"
)

// EnvModeKey is the environment variable that selects the mode.
const EnvModeKey = "GO_ENV_MODE"

// Mode selects which environment-specific files are loaded.
type Mode string

const (
	DevMode  Mode = "development"
	ProMode  Mode = "production"
	TestMode Mode = "test"
)

// ParseMode maps common spellings to a Mode. Unknown values mean DevMode.
func ParseMode(env string) Mode {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// CurrentMode reads GO_ENV_MODE.
func CurrentMode() Mode {
	return ParseMode(os.Getenv(EnvModeKey))
}

// SetMode sets GO_ENV_MODE for this process.
func SetMode(mode Mode) error {
	return os.Setenv(EnvModeKey, string(mode))
}

// aliases lists the extra file-name suffixes accepted for a mode.
func (m Mode) aliases() []string {
	switch m {
	case DevMode:
		return []string{"dev", "development"}
	case ProMode:
		return []string{"pro", "prod", "production"}
	case TestMode:
		return []string{"test"}
	}
	return nil
}

var envSuffixes = []string{".dev", ".development", ".pro", ".prod", ".production", ".test"}
