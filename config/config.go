// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Genesis: program identities, registered assets and initial balances,
//     applied once to a fresh store
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// StorageBackend selects the transactional store implementation.
type StorageBackend string

const (
	BackendMemory   StorageBackend = "memory"
	BackendBadger   StorageBackend = "badger"
	BackendPostgres StorageBackend = "postgres"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `env:"NETWORK"`
	DataDir string      `env:"DATADIR"`

	// Genesis file (YAML). Empty uses the built-in genesis for Network.
	GenesisPath string `env:"GENESIS"`

	Storage StorageConfig `envPrefix:"STORAGE_"`

	Engine EngineConfig `envPrefix:"ENGINE_"`

	// RPC server
	RPC RPCConfig `envPrefix:"RPC_"`

	// Logging
	Log LogConfig `envPrefix:"LOG_"`
}

// StorageConfig selects and tunes the store.
type StorageConfig struct {
	Backend     StorageBackend `env:"BACKEND"`
	PostgresURL string         `env:"POSTGRES_URL"`
	MaxConns    int32          `env:"MAX_CONNS"`
	Migrate     bool           `env:"MIGRATE"`
}

// EngineConfig holds ticket engine knobs.
type EngineConfig struct {
	// MaxAttempts bounds conflict re-runs per operation (0 = until the
	// request context ends).
	MaxAttempts int `env:"MAX_ATTEMPTS"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `env:"ENABLED"`
	Addr        string   `env:"ADDR"`
	Port        int      `env:"PORT"`
	AllowedIPs  []string `env:"ALLOWED" envSeparator:","`
	CORSOrigins []string `env:"CORS" envSeparator:","` // Allowed CORS origins ("*" = all).
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `env:"LEVEL"`
	File  string `env:"FILE"`
	JSON  bool   `env:"JSON"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ticketd
//	macOS:   ~/Library/Application Support/Ticketd
//	Windows: %APPDATA%\Ticketd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ticketd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Ticketd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Ticketd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Ticketd")
	default:
		return filepath.Join(home, ".ticketd")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreDir returns the Badger database directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "store")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "ticketd.conf")
}
