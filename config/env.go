package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "TICKETD_"

// ApplyEnv overlays TICKETD_* environment variables onto cfg. Variables
// that are not set leave the current value alone.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{Prefix: EnvPrefix})
}

func applyEnv(cfg *Config, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}
