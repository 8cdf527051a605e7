package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/umbra/engine/core"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	/** @brief How long the host waits on a frame fence before giving up, in milliseconds. */
	FenceTimeoutMs uint64 `toml:"fence_timeout_ms"`
	VSync          bool   `toml:"vsync"`
	Validation     bool   `toml:"validation"`
}

type ShadowConfig struct {
	Capacity          uint32  `toml:"capacity"`
	Resolution        uint32  `toml:"resolution"`
	BiasConstant      float32 `toml:"bias_constant"`
	BiasSlope         float32 `toml:"bias_slope"`
	DirectionalExtent float32 `toml:"directional_extent"`
	DirectionalDepth  float32 `toml:"directional_depth"`
	SpotNear          float32 `toml:"spot_near"`
}

type LimitsConfig struct {
	MaxDirectionalLights uint32 `toml:"max_directional_lights"`
	MaxSpotLights        uint32 `toml:"max_spot_lights"`
	MaxInstances         uint32 `toml:"max_instances"`
}

type ShadersConfig struct {
	Dir string `toml:"dir"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Log      LogConfig      `toml:"log"`
	Renderer RendererConfig `toml:"renderer"`
	Shadows  ShadowConfig   `toml:"shadows"`
	Limits   LimitsConfig   `toml:"limits"`
	Shaders  ShadersConfig  `toml:"shaders"`
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Umbra",
			Width:  1280,
			Height: 720,
		},
		Log: LogConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			FenceTimeoutMs: 1000,
			VSync:          true,
			Validation:     false,
		},
		Shadows: ShadowConfig{
			Capacity:          10,
			Resolution:        2048,
			BiasConstant:      0.0005,
			BiasSlope:         0.002,
			DirectionalExtent: 40.0,
			DirectionalDepth:  100.0,
			SpotNear:          0.1,
		},
		Limits: LimitsConfig{
			MaxDirectionalLights: 8,
			MaxSpotLights:        32,
			MaxInstances:         1024,
		},
		Shaders: ShadersConfig{
			Dir: "shaders",
		},
	}
}

// Load reads the TOML file at path on top of Default(). Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrapf(err, "failed to read config file %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, core.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return core.Newf("window size must be non-zero, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FenceTimeoutMs == 0 {
		return core.Newf("renderer.fence_timeout_ms must be greater than zero")
	}
	if c.Shadows.Capacity == 0 {
		return core.Newf("shadows.capacity must be greater than zero")
	}
	if c.Shadows.Resolution == 0 {
		return core.Newf("shadows.resolution must be greater than zero")
	}
	if c.Shadows.SpotNear <= 0 {
		return core.Newf("shadows.spot_near must be positive, got %f", c.Shadows.SpotNear)
	}
	if c.Shadows.DirectionalExtent <= 0 || c.Shadows.DirectionalDepth <= 0 {
		return core.Newf("shadows.directional_extent and shadows.directional_depth must be positive")
	}
	if c.Limits.MaxDirectionalLights == 0 || c.Limits.MaxSpotLights == 0 || c.Limits.MaxInstances == 0 {
		return core.Newf("limits must be greater than zero")
	}
	if c.Shaders.Dir == "" {
		return core.Newf("shaders.dir must not be empty")
	}
	return nil
}
