package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config represents the logger configuration.
type Config struct {
	// Name is attached to every entry as the logger name.
	Name string `mapstructure:"name" json:"name" yaml:"name"`

	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" json:"level" yaml:"level" default:"info"`

	// Format is json or console.
	Format string `mapstructure:"format" json:"format" yaml:"format" default:"json"`

	// Director is the directory for rotated log files. Empty disables file output.
	Director string `mapstructure:"director" json:"director" yaml:"director"`

	// FileName is the log file name inside Director.
	FileName string `mapstructure:"file-name" json:"fileName" yaml:"file-name" default:"billing.log"`

	MessageKey    string `mapstructure:"message-key" json:"messageKey" yaml:"message-key"`
	LevelKey      string `mapstructure:"level-key" json:"levelKey" yaml:"level-key"`
	TimeKey       string `mapstructure:"time-key" json:"timeKey" yaml:"time-key"`
	NameKey       string `mapstructure:"name-key" json:"nameKey" yaml:"name-key"`
	CallerKey     string `mapstructure:"caller-key" json:"callerKey" yaml:"caller-key"`
	StacktraceKey string `mapstructure:"stacktrace-key" json:"stacktraceKey" yaml:"stacktrace-key"`
	TimeFormat    string `mapstructure:"time-format" json:"timeFormat" yaml:"time-format"`

	// LogInTerminal also writes to stdout.
	LogInTerminal bool `mapstructure:"log-in-terminal" json:"logInTerminal" yaml:"log-in-terminal" default:"true"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `mapstructure:"max-age" json:"maxAge" yaml:"max-age"`
	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int `mapstructure:"max-size" json:"maxSize" yaml:"max-size"`
	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int  `mapstructure:"max-backups" json:"maxBackups" yaml:"max-backups"`
	Compress   bool `mapstructure:"compress" json:"compress" yaml:"compress"`

	ShowLineNumber bool `mapstructure:"show-line-number" json:"showLineNumber" yaml:"show-line-number"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileName:       "billing.log",
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		TimeFormat:     "2006/01/02 - 15:04:05",
		LogInTerminal:  true,
		MaxAge:         7,
		MaxSize:        100,
		MaxBackups:     10,
		Compress:       true,
		ShowLineNumber: false,
	}
}

// TransportLevel converts the string level to zapcore.Level.
func (c Config) TransportLevel() zapcore.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// applyDefaults applies default values to empty fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.FileName == "" {
		c.FileName = defaults.FileName
	}
	if c.MessageKey == "" {
		c.MessageKey = defaults.MessageKey
	}
	if c.LevelKey == "" {
		c.LevelKey = defaults.LevelKey
	}
	if c.TimeKey == "" {
		c.TimeKey = defaults.TimeKey
	}
	if c.NameKey == "" {
		c.NameKey = defaults.NameKey
	}
	if c.CallerKey == "" {
		c.CallerKey = defaults.CallerKey
	}
	if c.StacktraceKey == "" {
		c.StacktraceKey = defaults.StacktraceKey
	}
	if c.TimeFormat == "" {
		c.TimeFormat = defaults.TimeFormat
	}
	if c.MaxSize == 0 {
		c.MaxSize = defaults.MaxSize
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaults.MaxAge
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
}
