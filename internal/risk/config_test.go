package risk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Thresholds.LowMax != 3 {
		t.Errorf("LowMax = %v, want 3", cfg.Thresholds.LowMax)
	}
	if cfg.Thresholds.MediumMax != 8 {
		t.Errorf("MediumMax = %v, want 8", cfg.Thresholds.MediumMax)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, hash, err := LoadConfigWithHash(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Thresholds.LowMax != 3 || cfg.Thresholds.MediumMax != 8 {
		t.Errorf("defaults not applied: %+v", cfg.Thresholds)
	}
	if !strings.HasPrefix(hash, "sha256:") {
		t.Errorf("hash = %q, want sha256 prefix", hash)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  low_max: 2\n")

	cfg, hash, err := LoadConfigWithHash(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Thresholds.LowMax != 2 {
		t.Errorf("LowMax = %v, want 2", cfg.Thresholds.LowMax)
	}
	if cfg.Thresholds.MediumMax != 8 {
		t.Errorf("MediumMax = %v, want default 8", cfg.Thresholds.MediumMax)
	}
	if !strings.HasPrefix(hash, "sha256:") {
		t.Errorf("hash = %q, want sha256 prefix", hash)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "thresholds: [not a map")

	if _, _, err := LoadConfigWithHash(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigHashChangesWithContent(t *testing.T) {
	a := writeConfig(t, "thresholds:\n  low_max: 2\n")
	b := writeConfig(t, "thresholds:\n  low_max: 4\n")

	_, hashA, err := LoadConfigWithHash(a)
	if err != nil {
		t.Fatal(err)
	}
	_, hashB, err := LoadConfigWithHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if hashA == hashB {
		t.Error("different configs produced the same hash")
	}
}
