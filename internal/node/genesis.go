package node

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/ticketbox/config"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// genesisKey holds the hash of the genesis a store was initialized from.
var genesisKey = []byte("n/genesis")

// ErrGenesisMismatch is returned when a store was initialized from a
// different genesis than the one configured.
var ErrGenesisMismatch = errors.New("store was initialized from a different genesis")

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadGenesis returns the configured genesis file, or the built-in genesis
// of the network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.GenesisPath == "" {
		return config.GenesisFor(cfg.Network), nil
	}
	return config.LoadGenesis(expandHome(cfg.GenesisPath))
}

// applyGenesis registers the genesis assets and credits the allocations in
// one transaction. A store that already carries a genesis hash is left
// untouched if the hash matches. It reports whether genesis was written.
func applyGenesis(txn storage.Txn, l *ledger.Ledger, g *config.Genesis) (bool, error) {
	hash, err := g.Hash()
	if err != nil {
		return false, fmt.Errorf("hash genesis: %w", err)
	}

	stored, err := txn.Get(genesisKey)
	switch {
	case err == nil:
		if !bytes.Equal(stored, hash[:]) {
			return false, fmt.Errorf("%w: stored %x, configured %s", ErrGenesisMismatch, stored, hash)
		}
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, err
	}

	for _, a := range g.Assets {
		id, err := a.AssetRef()
		if err != nil {
			return false, fmt.Errorf("asset %s: %w", a.Symbol, err)
		}
		var issuer types.Address
		if a.Issuer != "" {
			if issuer, err = types.ParseAddress(a.Issuer); err != nil {
				return false, fmt.Errorf("asset %s issuer: %w", a.Symbol, err)
			}
		}
		asset := ledger.Asset{ID: id, Symbol: strings.ToUpper(a.Symbol), Decimals: a.Decimals, Issuer: issuer}
		if err := l.RegisterAsset(txn, asset); err != nil {
			return false, fmt.Errorf("register %s: %w", a.Symbol, err)
		}
	}

	for i, alloc := range g.Alloc {
		owner, err := types.ParseAddress(alloc.Owner)
		if err != nil {
			return false, fmt.Errorf("alloc %d owner: %w", i, err)
		}
		asset, err := g.ResolveAsset(alloc.Asset)
		if err != nil {
			return false, fmt.Errorf("alloc %d: %w", i, err)
		}
		if err := l.Credit(txn, asset, owner, alloc.Amount); err != nil {
			return false, fmt.Errorf("alloc %d: %w", i, err)
		}
	}

	if err := txn.Put(genesisKey, hash[:]); err != nil {
		return false, err
	}
	return true, nil
}
