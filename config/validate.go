package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Engine.MaxAttempts < 0 {
		return fmt.Errorf("engine.max_attempts must not be negative")
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendBadger
	}
	switch cfg.Storage.Backend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if strings.TrimSpace(cfg.Storage.PostgresURL) == "" {
			return fmt.Errorf("storage.backend=postgres requires storage.postgres_url")
		}
		if cfg.Storage.MaxConns < 1 {
			return fmt.Errorf("storage.max_conns must be at least 1")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, badger, or postgres")
	}

	for i, ip := range cfg.RPC.AllowedIPs {
		if err := validateAllowed(ip); err != nil {
			return fmt.Errorf("rpc.allowed[%d]: %w", i, err)
		}
	}
	return nil
}

// validateAllowed accepts a bare IP or a CIDR block.
func validateAllowed(s string) error {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		if _, _, err := net.ParseCIDR(s); err != nil {
			return fmt.Errorf("invalid CIDR %q", s)
		}
		return nil
	}
	if net.ParseIP(s) == nil {
		return fmt.Errorf("invalid IP %q", s)
	}
	return nil
}
