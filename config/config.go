// Package config loads the server configuration from a YAML file, with
// command-line flags layered on top by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Game    Game    `yaml:"game"`
	Results Results `yaml:"results"`
	Log     Log     `yaml:"log"`
}

// Server holds the listener settings and room sizing.
type Server struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Rooms   int    `yaml:"rooms"`
	Players int    `yaml:"players"`
}

// Game holds the session and round timing knobs.
type Game struct {
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	ReconnectGrace time.Duration `yaml:"reconnect_grace"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StartDelay     time.Duration `yaml:"start_delay"`
}

// Results selects and configures the round-result store.
type Results struct {
	// Backend is "memory" or "redis".
	Backend   string        `yaml:"backend"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
}

// Log holds the logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Host:    "0.0.0.0",
			Port:    10000,
			Rooms:   3,
			Players: 3,
		},
		Game: Game{
			AuthTimeout:    10 * time.Second,
			ReconnectGrace: 60 * time.Second,
			SweepInterval:  2 * time.Second,
			StartDelay:     5 * time.Second,
		},
		Results: Results{
			Backend: "memory",
			TTL:     30 * time.Minute,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path and unmarshals it over the defaults, so a partial file
// only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d outside 1024-65535", c.Server.Port)
	}
	if c.Server.Players < 2 || c.Server.Players > 3 {
		return fmt.Errorf("config: players must be 2 or 3, got %d", c.Server.Players)
	}
	if c.Server.Rooms < 1 || c.Server.Rooms > 100 {
		return fmt.Errorf("config: rooms must be 1-100, got %d", c.Server.Rooms)
	}
	switch c.Results.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown results backend %q", c.Results.Backend)
	}
	if c.Results.Backend == "redis" && c.Results.RedisAddr == "" {
		return fmt.Errorf("config: redis backend needs redis_addr")
	}
	return nil
}
