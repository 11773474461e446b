package server

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
)

// Config is the server's TOML-backed configuration.
type Config struct {
	// Listen is the host:port the server accepts client connections on.
	Listen string `toml:"listen"`
	// DataDir holds snapshots. Empty disables persistence.
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
	// Epoch is the leadership epoch stamped into assigned zxids. A cluster
	// deployment sets it from the consensus layer; standalone stays at 1.
	Epoch int32 `toml:"epoch"`

	Session struct {
		MinTimeoutMs uint32 `toml:"min_timeout_ms"`
		MaxTimeoutMs uint32 `toml:"max_timeout_ms"`
	} `toml:"session"`

	// Master, when set, marks this node a non-master: every request except
	// pings and close is answered with a redirect to this endpoint.
	Master struct {
		Host string `toml:"host"`
		Port int32  `toml:"port"`
	} `toml:"master"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		Listen:   ":8888",
		DataDir:  "data",
		LogLevel: "info",
		Epoch:    1,
	}
	cfg.Session.MinTimeoutMs = 4000
	cfg.Session.MaxTimeoutMs = 40000
	return cfg
}

// LoadConfig parses a TOML document over the defaults.
func LoadConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Session.MinTimeoutMs == 0 || cfg.Session.MaxTimeoutMs < cfg.Session.MinTimeoutMs {
		return nil, fmt.Errorf("invalid session timeout bounds [%d, %d]",
			cfg.Session.MinTimeoutMs, cfg.Session.MaxTimeoutMs)
	}
	return cfg, nil
}

// WriteDefault emits the default configuration as a TOML document.
func WriteDefault(w io.Writer) error {
	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *Config) isMaster() bool {
	return c.Master.Host == ""
}
