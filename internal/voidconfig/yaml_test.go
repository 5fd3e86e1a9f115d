package voidconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAMLMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "capacity: 512\nbase_ttl: 200\nseed: 7\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.Capacity != 512 {
		t.Errorf("expected capacity override 512, got %d", cfg.Capacity)
	}
	if cfg.BaseTTL != 200 {
		t.Errorf("expected base_ttl override 200, got %d", cfg.BaseTTL)
	}
	if cfg.Seed == nil || *cfg.Seed != 7 {
		t.Errorf("expected seed override 7, got %v", cfg.Seed)
	}
	// Untouched fields should retain their defaults.
	defaults := Defaults()
	if cfg.DecayHalfLife != defaults.DecayHalfLife {
		t.Errorf("expected decay_half_life to stay at default %d, got %d", defaults.DecayHalfLife, cfg.DecayHalfLife)
	}
}

func TestLoadYAMLRejectsInvalidMergedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("capacity: 1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := LoadYAML(path); err == nil {
		t.Fatalf("expected validation error for capacity below minimum")
	}
}

func TestLoadYAMLMissingFileErrors(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
