package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBootstrap_Initialize(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	config := strings.Join([]string{
		"app:",
		"  version: 1.2.3",
		"simulation:",
		"  seed: 99",
		"markets:",
		"  - id: wheat",
		"    mechanism: dealer",
		"storage:",
		"  path: " + filepath.Join(dir, "data", "sim.db"),
		"logging:",
		"  level: error",
		"  dir: " + filepath.Join(dir, "logs"),
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	b := NewBootstrap()
	if err := b.Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(b.Close)

	if b.Config.Markets[0].ID != "wheat" {
		t.Errorf("Unexpected config %+v", b.Config.Markets)
	}

	meta, err := b.Storage.LoadMetaMap()
	if err != nil {
		t.Fatal(err)
	}
	if meta["seed"] != "99" || meta["app_version"] != "1.2.3" || meta["started_at"] == "" {
		t.Errorf("Unexpected run metadata %v", meta)
	}
}

func TestBootstrap_MissingConfig(t *testing.T) {
	b := NewBootstrap()
	if err := b.Initialize(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("Expected error for missing config")
	}
	b.Close()
}
