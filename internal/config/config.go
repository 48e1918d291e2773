package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bilbercode/framecast/internal/rtp"
	"github.com/bilbercode/framecast/internal/stream"
)

// largest payload of a single IPv4 UDP datagram
const maxUDPPayload = 65507

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Addr          string           `yaml:"addr"`
	Media         string           `yaml:"media"`
	FrameInterval time.Duration    `yaml:"frame_interval"`
	MaxPayload    int              `yaml:"max_payload"`
	CacheSize     int              `yaml:"cache_size"`
	BindAttempts  int              `yaml:"bind_attempts"`
	Ports         stream.PortRange `yaml:"ports"`
}

type ClientConfig struct {
	Server string `yaml:"server"`
	// Window is how far ahead of the last delivered frame a frame may be.
	Window int `yaml:"window"`
	// EndGuard is how many frames before the end playback is torn down.
	EndGuard     int              `yaml:"end_guard"`
	Cache        string           `yaml:"cache"`
	BindAttempts int              `yaml:"bind_attempts"`
	Ports        stream.PortRange `yaml:"ports"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// File enables daily rotated log files next to stdout output.
	File string `yaml:"file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8554",
			Media:         "media",
			FrameInterval: stream.DefaultFrameInterval,
			MaxPayload:    stream.DefaultMaxPayload,
			CacheSize:     64,
			BindAttempts:  16,
			Ports:         stream.PortRange{Min: 5000, Max: 10000},
		},
		Client: ClientConfig{
			Server:       "127.0.0.1:8554",
			Window:       stream.DefaultWindow,
			EndGuard:     30,
			Cache:        "cache",
			BindAttempts: 16,
			Ports:        stream.PortRange{Min: 5000, Max: 10000},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads filename over the defaults. An empty filename yields the
// defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalidConfig, err)
	}

	switch {
	case c.Server.Addr == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	case c.Server.FrameInterval <= 0:
		return fmt.Errorf("%w: server.frame_interval must be positive", ErrInvalidConfig)
	case c.Server.MaxPayload <= 0 || c.Server.MaxPayload > maxUDPPayload-rtp.HeaderSize:
		return fmt.Errorf("%w: server.max_payload %d out of range", ErrInvalidConfig, c.Server.MaxPayload)
	case c.Server.CacheSize < 0:
		return fmt.Errorf("%w: server.cache_size must not be negative", ErrInvalidConfig)
	case c.Server.BindAttempts <= 0:
		return fmt.Errorf("%w: server.bind_attempts must be positive", ErrInvalidConfig)
	case c.Client.Server == "":
		return fmt.Errorf("%w: client.server is empty", ErrInvalidConfig)
	case c.Client.EndGuard < 0:
		return fmt.Errorf("%w: client.end_guard must not be negative", ErrInvalidConfig)
	case c.Client.BindAttempts <= 0:
		return fmt.Errorf("%w: client.bind_attempts must be positive", ErrInvalidConfig)
	}

	if err := validatePorts("server.ports", c.Server.Ports); err != nil {
		return err
	}
	return validatePorts("client.ports", c.Client.Ports)
}

func validatePorts(name string, ports stream.PortRange) error {
	if ports.Min < 0 || ports.Max > 65535 || ports.Min > ports.Max {
		return fmt.Errorf("%w: %s %d-%d", ErrInvalidConfig, name, ports.Min, ports.Max)
	}
	return nil
}

// LogLevel returns the configured level. Validate has already rejected
// unknown names.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
