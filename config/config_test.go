package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestDefault(t *testing.T) {
	m := Default(Mainnet)
	if m.Network != Mainnet || m.RPC.Port != 8575 || m.Storage.Backend != BackendBadger {
		t.Errorf("unexpected mainnet defaults: %+v", m)
	}
	tn := Default(Testnet)
	if tn.Network != Testnet || tn.RPC.Port != 8675 {
		t.Errorf("unexpected testnet defaults: %+v", tn)
	}
	if err := Validate(m); err != nil {
		t.Errorf("mainnet defaults invalid: %v", err)
	}
	if err := Validate(tn); err != nil {
		t.Errorf("testnet defaults invalid: %v", err)
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := Default(Testnet)
	cfg.DataDir = "/data"
	if got, want := cfg.StoreDir(), filepath.Join("/data", "testnet", "store"); got != want {
		t.Errorf("StoreDir = %s, want %s", got, want)
	}
	if got, want := cfg.ConfigFile(), filepath.Join("/data", "ticketd.conf"); got != want {
		t.Errorf("ConfigFile = %s, want %s", got, want)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketd.conf")
	content := `# comment
network = testnet
storage.backend = "postgres"
storage.postgres_url = 'postgres://u:p@localhost/db'
storage.max_conns = 4
rpc.allowed = 127.0.0.1, 10.0.0.0/8
log.json = yes
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("backend = %s", cfg.Storage.Backend)
	}
	if cfg.Storage.PostgresURL != "postgres://u:p@localhost/db" {
		t.Errorf("postgres url = %q", cfg.Storage.PostgresURL)
	}
	if cfg.Storage.MaxConns != 4 {
		t.Errorf("max conns = %d", cfg.Storage.MaxConns)
	}
	if !reflect.DeepEqual(cfg.RPC.AllowedIPs, []string{"127.0.0.1", "10.0.0.0/8"}) {
		t.Errorf("allowed = %v", cfg.RPC.AllowedIPs)
	}
	if !cfg.Log.JSON {
		t.Error("log.json should be true")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	entries, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketd.conf")
	if err := os.WriteFile(path, []byte("rpc.port\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for line without '='")
	}
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"network = testnet\nrpc.port = eighty\n", "line 2: rpc.port"},
		{"log.json = maybe\n", "line 1: log.json"},
		{"\n# c\nstorage.max_conns = 1e3\n", "line 3: storage.max_conns"},
	}
	for _, tt := range tests {
		entries, err := ParseFile(strings.NewReader(tt.input))
		if err != nil {
			t.Fatalf("ParseFile(%q): %v", tt.input, err)
		}
		err = ApplyFileConfig(Default(Mainnet), entries)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ApplyFileConfig(%q) = %v, want %q", tt.input, err, tt.want)
		}
	}
}

func TestParseFile_LaterKeyWins(t *testing.T) {
	entries, err := ParseFile(strings.NewReader("rpc.port = 1\nrpc.port = 2\nrpc.enabled = off\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, entries); err != nil {
		t.Fatal(err)
	}
	if cfg.RPC.Port != 2 || cfg.RPC.Enabled {
		t.Errorf("rpc = %+v", cfg.RPC)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketd.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatal(err)
	}
	entries, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, entries); err != nil {
		t.Fatal(err)
	}
	want := Default(Testnet)
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("default file produced %+v, want %+v", cfg, want)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default(Mainnet)
	err := applyEnv(cfg, env.Options{
		Prefix: EnvPrefix,
		Environment: map[string]string{
			"TICKETD_STORAGE_BACKEND":      "postgres",
			"TICKETD_STORAGE_POSTGRES_URL": "postgres://localhost/ticketd",
			"TICKETD_STORAGE_MAX_CONNS":    "7",
			"TICKETD_RPC_PORT":             "9000",
			"TICKETD_RPC_CORS":             "http://a,http://b",
			"TICKETD_LOG_JSON":             "true",
			"TICKETD_ENGINE_MAX_ATTEMPTS":  "3",
		},
	})
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.MaxConns != 7 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.RPC.Port != 9000 {
		t.Errorf("rpc.port = %d", cfg.RPC.Port)
	}
	if !reflect.DeepEqual(cfg.RPC.CORSOrigins, []string{"http://a", "http://b"}) {
		t.Errorf("cors = %v", cfg.RPC.CORSOrigins)
	}
	if !cfg.Log.JSON || cfg.Engine.MaxAttempts != 3 {
		t.Errorf("log.json=%v max_attempts=%d", cfg.Log.JSON, cfg.Engine.MaxAttempts)
	}
	// Unset variables keep their prior values.
	if cfg.RPC.Addr != "127.0.0.1" || cfg.Log.Level != "info" {
		t.Errorf("unset env clobbered defaults: addr=%q level=%q", cfg.RPC.Addr, cfg.Log.Level)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default(Mainnet)
	err := applyEnv(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"TICKETD_RPC_PORT": "x"},
	})
	if err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{
		"--testnet",
		"--storage=memory",
		"--rpc=false",
		"--rpc-allowed=10.0.0.1,10.0.0.2",
		"--log-json",
		"--max-attempts=0",
	})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	cfg := Default(Mainnet)
	cfg.Engine.MaxAttempts = 10
	ApplyFlags(cfg, f)

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("backend = %s", cfg.Storage.Backend)
	}
	if cfg.RPC.Enabled {
		t.Error("--rpc=false should disable RPC")
	}
	if !reflect.DeepEqual(cfg.RPC.AllowedIPs, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Errorf("allowed = %v", cfg.RPC.AllowedIPs)
	}
	if !cfg.Log.JSON {
		t.Error("--log-json should enable JSON logs")
	}
	if cfg.Engine.MaxAttempts != 0 {
		t.Errorf("explicit --max-attempts=0 not applied: %d", cfg.Engine.MaxAttempts)
	}
}

func TestApplyFlags_UnsetKeepsConfig(t *testing.T) {
	f, err := ParseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Default(Mainnet)
	cfg.RPC.Enabled = false
	cfg.Storage.Migrate = false
	ApplyFlags(cfg, f)
	if cfg.RPC.Enabled {
		t.Error("default-valued --rpc flag overrode config")
	}
	if cfg.Storage.Migrate {
		t.Error("default-valued --migrate flag overrode config")
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := ParseFlags([]string{"--mine"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TICKETD_LOG_LEVEL", "debug")
	cfg, _, err := Load([]string{"--datadir", dir, "--storage", "memory", "--rpc-port", "9100"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dir || cfg.Storage.Backend != BackendMemory || cfg.RPC.Port != 9100 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env log level not applied: %q", cfg.Log.Level)
	}
	if _, err := os.Stat(filepath.Join(dir, "ticketd.conf")); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoad_HelpReturnsNilConfig(t *testing.T) {
	cfg, f, err := Load([]string{"--help"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil || !f.Help {
		t.Errorf("expected nil config with Help set, got %v %+v", cfg, f)
	}
}

func TestLoad_PositionalArg(t *testing.T) {
	if _, _, err := Load([]string{"--datadir", t.TempDir(), "extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad network", func(c *Config) { c.Network = "devnet" }, true},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }, true},
		{"negative attempts", func(c *Config) { c.Engine.MaxAttempts = -1 }, true},
		{"bad backend", func(c *Config) { c.Storage.Backend = "sqlite" }, true},
		{"postgres without url", func(c *Config) { c.Storage.Backend = BackendPostgres }, true},
		{"postgres zero conns", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresURL = "postgres://x"
			c.Storage.MaxConns = 0
		}, true},
		{"postgres ok", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresURL = "postgres://x"
		}, false},
		{"cidr allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"10.0.0.0/8", "::1"} }, false},
		{"bad allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"localhost"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Mainnet)
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_EmptyBackendDefaults(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.Storage.Backend = ""
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != BackendBadger {
		t.Errorf("backend = %q, want badger", cfg.Storage.Backend)
	}
}
