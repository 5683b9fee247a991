package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Thresholds defines the risk score boundaries between levels.
// score < LowMax is low, score <= MediumMax is medium, above is high.
type Thresholds struct {
	LowMax    float64 `yaml:"low_max"`
	MediumMax float64 `yaml:"medium_max"`
}

// Config holds the tunable assessment parameters.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds"`
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: Thresholds{
			LowMax:    3,
			MediumMax: 8,
		},
	}
}

// LoadConfig loads assessment configuration from a YAML file.
// Empty path falls back to ~/.governor/risk.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads assessment configuration and returns the SHA-256
// hash of the raw YAML bytes. When no file exists (defaults used), the hash
// is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	path = ResolvePath(path)
	if path == "" {
		return DefaultConfig(), emptyHash(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read risk config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse risk config: %w", err)
	}

	return cfg, hash, nil
}

// ResolvePath expands an empty config path to the per-user default
// ~/.governor/risk.yaml. Returns "" when the home directory is unknown.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".governor", "risk.yaml")
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}
