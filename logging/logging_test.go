package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected Level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected Format 'json', got '%s'", cfg.Format)
	}
	if cfg.Director != "" {
		t.Errorf("expected no file output by default, got '%s'", cfg.Director)
	}
}

func TestConfigTransportLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Config{Level: tt.level}
			if got := cfg.TransportLevel(); got != tt.expected {
				t.Errorf("TransportLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(Config{
		Level:         "debug",
		Director:      dir,
		LogInTerminal: false,
	})

	logger.Info("plugin resolved", Plugin("usage"))
	if err := logger.Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "billing.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"plugin":"usage"`) {
		t.Errorf("expected plugin field in %q", data)
	}
}

func TestWithAndNamed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := FromZap(zap.New(core)).Named("billing").With(Hook("beforeCustomerCreate"))

	logger.Warn("hook handler failed", HandlerIndex(1))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "billing" {
		t.Errorf("expected logger name billing, got %q", entries[0].LoggerName)
	}
	fields := entries[0].ContextMap()
	if fields["hook"] != "beforeCustomerCreate" {
		t.Errorf("unexpected hook field: %v", fields["hook"])
	}
	if fields["handler"] != int64(1) {
		t.Errorf("unexpected handler field: %v", fields["handler"])
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected nop logger")
	}
	l := NewNop()
	if OrNop(l) != l {
		t.Error("expected the same logger back")
	}
}
