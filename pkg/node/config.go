package node

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/remote"
	"github.com/fortiblox/X1-Chrono/pkg/rpc"
	"github.com/fortiblox/X1-Chrono/pkg/store"
)

// ErrConfigInvalid wraps every configuration error.
var ErrConfigInvalid = errors.New("invalid node configuration")

// Config holds node configuration, as read from a TOML file.
type Config struct {
	// DataDir is the root directory for node data. A relative store path
	// is resolved against it.
	DataDir string `toml:"data_dir"`

	Store  store.Config  `toml:"store"`
	Engine engine.Config `toml:"engine"`
	RPC    RPCConfig     `toml:"rpc"`
	GRPC   GRPCConfig    `toml:"grpc"`
	Log    LogConfig     `toml:"log"`
}

// RPCConfig enables and configures the JSON-RPC server.
type RPCConfig struct {
	Enabled bool `toml:"enabled"`
	rpc.Config
}

// GRPCConfig enables and configures the gRPC server.
type GRPCConfig struct {
	Enabled bool `toml:"enabled"`
	remote.ServerConfig
}

// LogConfig configures logging. The CLI applies it.
type LogConfig struct {
	// Verbosity is the commonlog verbosity; 0 keeps warnings and errors only.
	Verbosity int `toml:"verbosity"`

	// File, when set, receives log output instead of stderr.
	File string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		Store:   store.DefaultConfig("chrono.db"),
		Engine:  engine.DefaultConfig(),
		RPC: RPCConfig{
			Enabled: true,
			Config:  rpc.DefaultConfig(),
		},
		GRPC: GRPCConfig{
			Enabled:      false,
			ServerConfig: remote.DefaultServerConfig(),
		},
		Log: LogConfig{Verbosity: 1},
	}
}

// LoadConfig decodes the TOML file at path over DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys %v", ErrConfigInvalid, undecoded)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Store.Backend != store.BackendMemory && !c.Store.InMemory && c.DataDir == "" && !filepath.IsAbs(c.Store.Path) {
		return fmt.Errorf("%w: data directory is required", ErrConfigInvalid)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: store: %v", ErrConfigInvalid, err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if c.RPC.Enabled {
		if err := c.RPC.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}
	if c.GRPC.Enabled {
		if err := c.GRPC.ServerConfig.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}
	return nil
}

// storeConfig returns the store configuration with its path resolved.
func (c *Config) storeConfig() store.Config {
	sc := c.Store
	if sc.Path != "" && !filepath.IsAbs(sc.Path) && c.DataDir != "" {
		sc.Path = filepath.Join(c.DataDir, sc.Path)
	}
	return sc
}
