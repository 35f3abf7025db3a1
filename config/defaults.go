package config

// Engine and RPC defaults shared by both networks.
const (
	DefaultMaxAttempts = 64
	DefaultMaxConns    = 10
	DefaultRPCAddr     = "127.0.0.1"
)

// rpcPorts keeps the two networks' nodes from colliding on one host.
var rpcPorts = map[NetworkType]int{
	Mainnet: 8575,
	Testnet: 8675,
}

// Default returns the built-in configuration for network. Unknown networks
// get mainnet values with the network field left as given, so Validate can
// reject them.
func Default(network NetworkType) *Config {
	port, ok := rpcPorts[network]
	if !ok {
		port = rpcPorts[Mainnet]
	}
	if network == "" {
		network = Mainnet
	}
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend:  BackendBadger,
			MaxConns: DefaultMaxConns,
			Migrate:  true,
		},
		Engine: EngineConfig{MaxAttempts: DefaultMaxAttempts},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       DefaultRPCAddr,
			Port:       port,
			AllowedIPs: []string{DefaultRPCAddr},
		},
		Log: LogConfig{Level: "info"},
	}
}
