package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMapLevelToZapLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected string
		enabled  bool
	}{
		{"debug level", LevelDebug, "debug", true},
		{"info level", LevelInfo, "info", true},
		{"warn level", LevelWarn, "warn", true},
		{"error level", LevelError, "error", true},
		{"off", LevelOff, "fatal", false},
		{"unknown level defaults to info", LogLevel("unknown"), "info", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zapLevel, enabled := mapLevelToZapLevel(tt.level)
			if zapLevel.String() != tt.expected || enabled != tt.enabled {
				t.Errorf("mapLevelToZapLevel() = %v/%v, want %v/%v", zapLevel.String(), enabled, tt.expected, tt.enabled)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, ok := ParseLevel("WARNING"); !ok || lvl != LevelWarn {
		t.Fatalf("ParseLevel(WARNING) = %v, %v", lvl, ok)
	}
	if _, ok := ParseLevel("chatty"); ok {
		t.Fatal("expected unknown level to be rejected")
	}
}

func TestInitWritesToFile(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "nested", "kdcdash.log")
	if err := Init(Config{Level: LevelDebug, File: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Info("refresh failed", "resource", "ports")
	Debugf("poll attempt %d", 3)
	if err := Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "refresh failed") || !strings.Contains(out, "poll attempt 3") {
		t.Fatalf("log file missing entries: %q", out)
	}
}

func TestGetWithoutInit(t *testing.T) {
	Reset()
	defer Reset()

	if Get() == nil {
		t.Fatal("Get() returned nil logger")
	}
}
