package infra

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Dir = t.TempDir()
	cfg.Logging.Level = "warn"

	var console bytes.Buffer
	logger := newLogger(cfg, &console)

	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info must be filtered at warn level")
	}
	logger.Warn("step halted", slog.Int64("step", 3))

	if !strings.Contains(console.String(), `"msg":"step halted"`) {
		t.Errorf("Expected JSON line on console, got %q", console.String())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, "market_sim.log"))
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if !strings.Contains(string(data), `"step":3`) {
		t.Errorf("Expected structured attribute in file, got %q", data)
	}
}
