package config

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Backend string

const (
	BackendSoftware Backend = "software"
	BackendVulkan   Backend = "vulkan"
)

type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Frames is the number of frames to run before exiting. Zero runs until interrupted.
	Frames uint64 `toml:"frames"`
	// Preview is a PNG path written with a CPU trace of the scene after the last frame.
	// Only the software backend can produce it.
	Preview string `toml:"preview"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Backend Backend `toml:"backend"`
}

type BindlessConfig struct {
	/** @brief The maximum number of textures the bindless table can hold. */
	Capacity uint32 `toml:"capacity"`
}

type ArenaConfig struct {
	/** @brief Capacity of the shared vertex buffer, in vertices. */
	MaxVertices uint64 `toml:"max_vertices"`
	/** @brief Capacity of the shared index buffer, in indices. */
	MaxIndices uint64 `toml:"max_indices"`
}

type RayTracingConfig struct {
	Enabled bool `toml:"enabled"`
	// Refit requests in-place top-level updates once a first build exists.
	Refit bool `toml:"refit"`
}

type AssetsConfig struct {
	TexturesDir string `toml:"textures_dir"`
	Watch       bool   `toml:"watch"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Logging     LoggingConfig     `toml:"logging"`
	Renderer    RendererConfig    `toml:"renderer"`
	Bindless    BindlessConfig    `toml:"bindless"`
	Arena       ArenaConfig       `toml:"arena"`
	RayTracing  RayTracingConfig  `toml:"raytracing"`
	Assets      AssetsConfig      `toml:"assets"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Anima RT",
			Width:  1280,
			Height: 720,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			Backend: BackendSoftware,
		},
		Bindless: BindlessConfig{
			Capacity: 1024,
		},
		Arena: ArenaConfig{
			MaxVertices: 15_000_000,
			MaxIndices:  15_000_000,
		},
		RayTracing: RayTracingConfig{
			Enabled: true,
		},
		Assets: AssetsConfig{
			TexturesDir: "assets/textures",
		},
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML data on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendSoftware, BackendVulkan:
	default:
		return fmt.Errorf("unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Bindless.Capacity == 0 {
		return fmt.Errorf("bindless.capacity must be > 0")
	}
	if c.Arena.MaxVertices == 0 || c.Arena.MaxIndices == 0 {
		return fmt.Errorf("arena.max_vertices and arena.max_indices must be > 0")
	}
	if c.Arena.MaxVertices > math.MaxUint32 || c.Arena.MaxIndices > math.MaxUint32 {
		return fmt.Errorf("arena.max_vertices and arena.max_indices must fit 32-bit offsets (<= %d)", uint64(math.MaxUint32))
	}
	return nil
}

// Encode renders the configuration back to TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
