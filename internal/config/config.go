package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "PERCEPTION_CONFIG"

type Config struct {
	Session  SessionConfig  `toml:"session"`
	Vision   VisionConfig   `toml:"vision"`
	Lighting LightingConfig `toml:"lighting"`
	Audio    AudioConfig    `toml:"audio"`
	Loop     LoopConfig     `toml:"loop"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

type SessionConfig struct {
	Name     string  `toml:"name"`
	CellSize float64 `toml:"cell_size"` // pixels per cell, rendering only
	Ambient  string  `toml:"ambient"`   // "dark", "dim" or "bright"
	Scene    string  `toml:"scene"`     // scene fixture loaded at start; empty = blank map
	Catalog  string  `toml:"catalog"`   // light source table
}

type VisionConfig struct {
	Settle    time.Duration `toml:"settle"`     // drag debounce window
	MaxRadius float64       `toml:"max_radius"` // 0 = unlimited
}

type LightingConfig struct {
	DimIntensity float64 `toml:"dim_intensity"`
	ScriptsDir   string  `toml:"scripts_dir"` // empty = built-in step falloff
}

type AudioConfig struct {
	SampleRate int           `toml:"sample_rate"`
	TracksDir  string        `toml:"tracks_dir"`
	Speaker    bool          `toml:"speaker"` // play the mix on the default output device
	Buffer     time.Duration `toml:"buffer"`
}

type LoopConfig struct {
	TickRate           time.Duration `toml:"tick_rate"`
	MaxCommandsPerTick int           `toml:"max_commands_per_tick"`
	CommandQueueSize   int           `toml:"command_queue_size"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables the light history log
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the config path from the environment, or fallback.
func Path(fallback string) string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return fallback
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return defaults()
}

func (c *Config) validate() error {
	if c.Session.CellSize <= 0 {
		return fmt.Errorf("session.cell_size must be positive, got %v", c.Session.CellSize)
	}
	if c.Vision.Settle < 0 {
		return fmt.Errorf("vision.settle must not be negative")
	}
	if c.Vision.MaxRadius < 0 {
		return fmt.Errorf("vision.max_radius must not be negative")
	}
	if c.Lighting.DimIntensity < 0 || c.Lighting.DimIntensity > 1 {
		return fmt.Errorf("lighting.dim_intensity must be within [0,1], got %v", c.Lighting.DimIntensity)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Loop.TickRate <= 0 {
		return fmt.Errorf("loop.tick_rate must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Session: SessionConfig{
			Name:     "table",
			CellSize: 70,
			Ambient:  "dark",
			Catalog:  "data/yaml/light_sources.yaml",
		},
		Vision: VisionConfig{
			Settle:    150 * time.Millisecond,
			MaxRadius: 120,
		},
		Lighting: LightingConfig{
			DimIntensity: 0.5,
			ScriptsDir:   "scripts",
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			TracksDir:  "data/audio",
			Buffer:     100 * time.Millisecond,
		},
		Loop: LoopConfig{
			TickRate:           100 * time.Millisecond,
			MaxCommandsPerTick: 64,
			CommandQueueSize:   256,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
