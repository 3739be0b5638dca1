package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		env      string
		encoding string
		level    zapcore.Level
	}{
		{"production", "json", zapcore.InfoLevel},
		{" Production ", "json", zapcore.InfoLevel},
		{"development", "console", zapcore.DebugLevel},
		{"", "console", zapcore.DebugLevel},
	}
	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			cfg := Config(tc.env)
			if cfg.Encoding != tc.encoding {
				t.Fatalf("encoding: want %q, got %q", tc.encoding, cfg.Encoding)
			}
			if got := cfg.Level.Level(); got != tc.level {
				t.Fatalf("level: want %v, got %v", tc.level, got)
			}
		})
	}
}

func TestNew_LevelOverride(t *testing.T) {
	logger, err := New("production", "warn")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn must be enabled")
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Fatalf("expected unknown level error")
	}
}
