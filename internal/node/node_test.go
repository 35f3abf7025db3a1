package node

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/ticketbox/config"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	klog "github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/rpcclient"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	klog.SetOutput(io.Discard, "error")
	cfg := config.Default(config.Testnet)
	cfg.DataDir = t.TempDir()
	cfg.RPC.Addr = "127.0.0.1"
	cfg.RPC.Port = 0
	return cfg
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.ticketd/genesis.yaml", filepath.Join(home, ".ticketd/genesis.yaml")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNew_AppliesGenesis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	ctx := context.Background()

	n, err := New(ctx, cfg, Options{Store: storage.NewMemory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()

	if n.RPCAddr() != "" {
		t.Errorf("RPCAddr = %q with RPC disabled", n.RPCAddr())
	}

	faucet := config.TestnetFaucetAddress()
	bal, err := n.Ledger().Balance(ctx, types.NativeAsset, faucet)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 1_000_000*config.Coin {
		t.Errorf("faucet native = %d", bal)
	}

	usdc := config.AssetID("USDC")
	bal, err = n.Ledger().Balance(ctx, usdc, faucet)
	if err != nil {
		t.Fatalf("Balance usdc: %v", err)
	}
	if bal != 1_000_000_000_000 {
		t.Errorf("faucet usdc = %d", bal)
	}

	assets, err := n.Ledger().Assets(ctx)
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(assets) != 2 || assets[1].Symbol != "USDC" || assets[1].Decimals != 6 {
		t.Errorf("assets = %+v", assets)
	}

	want, _ := n.Genesis().Program()
	if n.Engine().ProgramID() != want {
		t.Errorf("program = %s, want %s", n.Engine().ProgramID(), want)
	}
}

func TestApplyGenesis_Idempotent(t *testing.T) {
	db := storage.NewMemory()
	l := ledger.New()
	g := config.TestnetGenesis()
	ctx := context.Background()

	apply := func() (bool, error) {
		var applied bool
		err := db.Update(ctx, func(txn storage.Txn) error {
			var err error
			applied, err = applyGenesis(txn, l, g)
			return err
		})
		return applied, err
	}

	applied, err := apply()
	if err != nil || !applied {
		t.Fatalf("first apply = %v, %v", applied, err)
	}
	applied, err = apply()
	if err != nil || applied {
		t.Fatalf("second apply = %v, %v", applied, err)
	}

	var bal uint64
	db.View(ctx, func(txn storage.Txn) error {
		bal, err = l.Balance(txn, types.NativeAsset, config.TestnetFaucetAddress())
		return err
	})
	if bal != 1_000_000*config.Coin {
		t.Errorf("faucet credited twice: %d", bal)
	}
}

func TestApplyGenesis_Mismatch(t *testing.T) {
	db := storage.NewMemory()
	l := ledger.New()
	ctx := context.Background()

	err := db.Update(ctx, func(txn storage.Txn) error {
		_, err := applyGenesis(txn, l, config.TestnetGenesis())
		return err
	})
	if err != nil {
		t.Fatalf("apply testnet: %v", err)
	}

	err = db.Update(ctx, func(txn storage.Txn) error {
		_, err := applyGenesis(txn, l, config.MainnetGenesis())
		return err
	})
	if !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("err = %v, want ErrGenesisMismatch", err)
	}
}

type closeCounter struct {
	storage.Store
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.Store.Close()
}

func TestNew_LeavesInjectedStoreOpen(t *testing.T) {
	cfg := testConfig(t)
	db := &closeCounter{Store: storage.NewMemory()}
	ctx := context.Background()

	err := db.Update(ctx, func(txn storage.Txn) error {
		_, err := applyGenesis(txn, ledger.New(), config.MainnetGenesis())
		return err
	})
	if err != nil {
		t.Fatalf("apply mainnet: %v", err)
	}

	if _, err := New(ctx, cfg, Options{Store: db}); !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("err = %v, want ErrGenesisMismatch", err)
	}
	if db.closed != 0 {
		t.Errorf("injected store closed %d times", db.closed)
	}
	if ok, err := db.Has(genesisKey); err != nil || !ok {
		t.Errorf("store unusable after failed New: %v, %v", ok, err)
	}
}

func TestNew_BadgerResume(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Storage.Backend = config.BackendBadger
	ctx := context.Background()

	n, err := New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Stop()

	// Reopening the same store with the same genesis is fine.
	n, err = New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	bal, err := n.Ledger().Balance(ctx, types.NativeAsset, config.TestnetFaucetAddress())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 1_000_000*config.Coin {
		t.Errorf("faucet native after reopen = %d", bal)
	}
	n.Stop()

	// A different genesis file is refused.
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := config.MainnetGenesis().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg.GenesisPath = path
	if _, err := New(ctx, cfg, Options{}); !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("err = %v, want ErrGenesisMismatch", err)
	}
}

func TestNew_MissingGenesisFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.GenesisPath = filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := New(context.Background(), cfg, Options{Store: storage.NewMemory()}); err == nil {
		t.Fatal("expected error for missing genesis file")
	}
}

func TestNode_ServesRPC(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(context.Background(), cfg, Options{Store: storage.NewMemory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	client := rpcclient.New("http://" + n.RPCAddr() + "/")
	assets, err := client.Assets(context.Background())
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(assets) != 2 {
		t.Errorf("assets = %+v", assets)
	}
}
