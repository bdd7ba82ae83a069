package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/memmaker/chunkforge/engine/voxel"
)

type Config struct {
	World  WorldConfig  `yaml:"world"`
	Jobs   JobsConfig   `yaml:"jobs"`
	Store  StoreConfig  `yaml:"store"`
	Bench  BenchConfig  `yaml:"bench"`
	Viewer ViewerConfig `yaml:"viewer"`
}

type WorldConfig struct {
	ChunkSize int32  `yaml:"chunk_size"`
	SizeX     int32  `yaml:"size_x"`
	SizeY     int32  `yaml:"size_y"`
	SizeZ     int32  `yaml:"size_z"`
	Seed      int64  `yaml:"seed"`
	Biome     string `yaml:"biome"`
}

type JobsConfig struct {
	Policy     string `yaml:"policy"`
	Workers    int    `yaml:"workers"`
	QueueDepth int    `yaml:"queue_depth"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type BenchConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	Rounds      int    `yaml:"rounds"`
}

type ViewerConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	VSync  bool   `yaml:"vsync"`
	Atlas  string `yaml:"atlas"`
}

func DefaultConfig() Config {
	return Config{
		World: WorldConfig{
			ChunkSize: voxel.DefaultChunkSize,
			SizeX:     4,
			SizeY:     2,
			SizeZ:     4,
			Seed:      32,
			Biome:     "hills",
		},
		Jobs: JobsConfig{
			Policy:     "fixed",
			Workers:    0, // 0 means one per CPU
			QueueDepth: 64,
		},
		Store: StoreConfig{
			Path: "chunkforge-data",
		},
		Bench: BenchConfig{
			MetricsAddr: envOr("CHUNKFORGE_METRICS_ADDR", ""),
			Rounds:      4,
		},
		Viewer: ViewerConfig{
			Width:  1024,
			Height: 768,
			VSync:  true,
		},
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// LoadConfig merges a YAML file over the defaults. An empty path falls
// back to $CHUNKFORGE_CONFIG; with neither set the defaults stand.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("CHUNKFORGE_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %q", path)
	}
	return cfg, nil
}

func (c Config) worldDimensions() voxel.Int3 {
	return voxel.Int3{X: c.World.SizeX, Y: c.World.SizeY, Z: c.World.SizeZ}
}
