package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/memmaker/chunkforge/engine/voxel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("CHUNKFORGE_METRICS_ADDR", "")
	cfg := DefaultConfig()
	if cfg.World.ChunkSize != voxel.DefaultChunkSize {
		t.Errorf("chunk size: got %d, want %d", cfg.World.ChunkSize, voxel.DefaultChunkSize)
	}
	if cfg.World.Biome != "hills" {
		t.Errorf("biome: got %q, want hills", cfg.World.Biome)
	}
	if cfg.Jobs.Policy != "fixed" || cfg.Jobs.QueueDepth != 64 {
		t.Errorf("jobs: got %q/%d, want fixed/64", cfg.Jobs.Policy, cfg.Jobs.QueueDepth)
	}
	if cfg.Bench.MetricsAddr != "" {
		t.Errorf("metrics addr should default to off, got %q", cfg.Bench.MetricsAddr)
	}
	if got := cfg.worldDimensions(); got != (voxel.Int3{X: 4, Y: 2, Z: 4}) {
		t.Errorf("world dimensions: got %v", got)
	}
}

const partialYAML = `
world:
  chunk_size: 16
  biome: flat
jobs:
  policy: adaptive
  workers: 2
store:
  path: /tmp/worlds
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, partialYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.World.ChunkSize != 16 || cfg.World.Biome != "flat" {
		t.Errorf("world overrides: got %d/%q", cfg.World.ChunkSize, cfg.World.Biome)
	}
	if cfg.Jobs.Policy != "adaptive" || cfg.Jobs.Workers != 2 {
		t.Errorf("jobs overrides: got %q/%d", cfg.Jobs.Policy, cfg.Jobs.Workers)
	}
	if cfg.Store.Path != "/tmp/worlds" {
		t.Errorf("store override: got %q", cfg.Store.Path)
	}

	// Fields the file does not mention keep their defaults.
	if cfg.World.SizeX != 4 || cfg.Jobs.QueueDepth != 64 || cfg.Viewer.Width != 1024 {
		t.Errorf("defaults lost: got size_x %d, queue_depth %d, width %d",
			cfg.World.SizeX, cfg.Jobs.QueueDepth, cfg.Viewer.Width)
	}
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("CHUNKFORGE_CONFIG", writeConfigFile(t, partialYAML))
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.World.Biome != "flat" {
		t.Errorf("env config ignored: biome %q", cfg.World.Biome)
	}
}

func TestLoadConfigWithoutAnySource(t *testing.T) {
	t.Setenv("CHUNKFORGE_CONFIG", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Jobs.Policy != "fixed" {
		t.Errorf("expected defaults, got policy %q", cfg.Jobs.Policy)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}

	_, err := LoadConfig(writeConfigFile(t, "world: [not, a, mapping]"))
	if err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
	if !strings.Contains(err.Error(), "parsing config") {
		t.Errorf("error should name the parse step, got %v", err)
	}
}
