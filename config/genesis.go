package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Klingon-tech/ticketbox/pkg/codec"
	"github.com/Klingon-tech/ticketbox/pkg/crypto"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// =============================================================================
// Genesis (applied once to a fresh store)
// =============================================================================

// NativeSymbol names the native unit in allocation entries.
const NativeSymbol = "TBX"

// Denomination of the native unit. All balances are in base units.
const (
	Decimals = 9
	Coin     = 1_000_000_000
)

// MaxSymbolLen bounds a fungible asset ticker.
const MaxSymbolLen = 16

// Genesis names the engine programs and seeds the ledger.
type Genesis struct {
	// Network the file was written for. Informational.
	Network string `yaml:"network"`

	// ProgramID owns every campaign, collection and ticket address.
	ProgramID string `yaml:"program_id"`

	// MetadataProgramID owns metadata and edition addresses.
	MetadataProgramID string `yaml:"metadata_program_id"`

	// Fungible assets that campaigns may price in.
	Assets []GenesisAsset `yaml:"assets,omitempty"`

	// Initial balances.
	Alloc []GenesisAlloc `yaml:"alloc,omitempty"`
}

// GenesisAsset registers a fungible asset. An empty ID is derived from the
// symbol with AssetID.
type GenesisAsset struct {
	ID       string `yaml:"id,omitempty"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Issuer   string `yaml:"issuer,omitempty"`
}

// GenesisAlloc credits Amount base units of Asset to Owner. Asset is a
// registered symbol, an asset address, or empty / NativeSymbol for the
// native unit.
type GenesisAlloc struct {
	Owner  string `yaml:"owner"`
	Asset  string `yaml:"asset,omitempty"`
	Amount uint64 `yaml:"amount"`
}

// AssetID derives the default identifier of a genesis asset.
// ID = BLAKE3("ticketbox/asset" || symbol)[:20].
func AssetID(symbol string) types.AssetRef {
	h := crypto.HashParts([]byte("ticketbox/asset"), []byte(symbol))
	var id types.AssetRef
	copy(id[:], h[:types.AddressSize])
	return id
}

// ProgramAddress derives a well-known program address from a name.
func ProgramAddress(name string) types.Address {
	h := crypto.HashParts([]byte("ticketbox/program"), []byte(name))
	var a types.Address
	copy(a[:], h[:types.AddressSize])
	return a
}

// =============================================================================
// Testnet Identity
//
// Well-known funded key for testnet (DO NOT use on mainnet).
// =============================================================================

// TestnetFaucetPrivKey is the private key (hex) of the testnet faucet account.
const TestnetFaucetPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"

// TestnetFaucetAddress returns the address of TestnetFaucetPrivKey.
func TestnetFaucetAddress() types.Address {
	k, err := crypto.ParsePrivateKey(TestnetFaucetPrivKey)
	if err != nil {
		panic("testnet faucet key: " + err.Error())
	}
	return k.Address()
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		Network:           string(Mainnet),
		ProgramID:         ProgramAddress("ticket_box").Hex(),
		MetadataProgramID: ProgramAddress("token_metadata").Hex(),
		Assets: []GenesisAsset{
			{Symbol: "USDC", Decimals: 6},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.Network = string(Testnet)

	// Testnet allocation: the faucet holds native and USDC.
	faucet := TestnetFaucetAddress().Hex()
	g.Alloc = []GenesisAlloc{
		{Owner: faucet, Amount: 1_000_000 * Coin},
		{Owner: faucet, Asset: "USDC", Amount: 1_000_000 * 1_000_000},
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a YAML file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes and validates a YAML genesis document. Unknown keys
// are rejected.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a YAML file.
func (g *Genesis) Save(path string) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if _, err := g.Program(); err != nil {
		return err
	}
	if _, err := g.MetadataProgram(); err != nil {
		return err
	}

	ids := make(map[types.AssetRef]struct{}, len(g.Assets))
	symbols := make(map[string]struct{}, len(g.Assets))
	for i, a := range g.Assets {
		if a.Symbol == "" || len(a.Symbol) > MaxSymbolLen {
			return fmt.Errorf("assets[%d]: symbol must be 1-%d bytes", i, MaxSymbolLen)
		}
		sym := strings.ToUpper(a.Symbol)
		if sym == NativeSymbol {
			return fmt.Errorf("assets[%d]: symbol %s is reserved", i, NativeSymbol)
		}
		if _, ok := symbols[sym]; ok {
			return fmt.Errorf("assets[%d]: duplicate symbol %s", i, a.Symbol)
		}
		symbols[sym] = struct{}{}

		id, err := a.AssetRef()
		if err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if id == types.NativeAsset {
			return fmt.Errorf("assets[%d]: zero id is the native unit", i)
		}
		if _, ok := ids[id]; ok {
			return fmt.Errorf("assets[%d]: duplicate id %s", i, id)
		}
		ids[id] = struct{}{}
		if a.Issuer != "" {
			if _, err := types.ParseAddress(a.Issuer); err != nil {
				return fmt.Errorf("assets[%d]: invalid issuer: %w", i, err)
			}
		}
	}

	// Per-asset totals must fit the ledger's uint64 balances.
	totals := make(map[types.AssetRef]uint64)
	for i, al := range g.Alloc {
		if _, err := types.ParseAddress(al.Owner); err != nil {
			return fmt.Errorf("alloc[%d]: invalid owner %q: %w", i, al.Owner, err)
		}
		if al.Amount == 0 {
			return fmt.Errorf("alloc[%d]: amount must be positive", i)
		}
		asset, err := g.ResolveAsset(al.Asset)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if totals[asset] > math.MaxUint64-al.Amount {
			return fmt.Errorf("alloc[%d]: total for %s overflows", i, al.Asset)
		}
		totals[asset] += al.Amount
	}
	return nil
}

// Program returns the parsed engine program address.
func (g *Genesis) Program() (types.Address, error) {
	return parseProgram("program_id", g.ProgramID)
}

// MetadataProgram returns the parsed metadata program address.
func (g *Genesis) MetadataProgram() (types.Address, error) {
	return parseProgram("metadata_program_id", g.MetadataProgramID)
}

func parseProgram(field, s string) (types.Address, error) {
	if s == "" {
		return types.Address{}, fmt.Errorf("%s is required", field)
	}
	a, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if a.IsZero() {
		return types.Address{}, fmt.Errorf("%s must not be zero", field)
	}
	return a, nil
}

// AssetRef returns the asset identifier, deriving it from the symbol when
// ID is empty.
func (a GenesisAsset) AssetRef() (types.AssetRef, error) {
	if a.ID == "" {
		return AssetID(strings.ToUpper(a.Symbol)), nil
	}
	id, err := types.ParseAddress(a.ID)
	if err != nil {
		return types.AssetRef{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// ErrUnknownGenesisAsset is returned when an allocation names an asset the
// genesis does not register.
var ErrUnknownGenesisAsset = errors.New("unknown genesis asset")

// ResolveAsset maps an allocation's asset field to an asset reference.
func (g *Genesis) ResolveAsset(s string) (types.AssetRef, error) {
	if s == "" || strings.EqualFold(s, NativeSymbol) {
		return types.NativeAsset, nil
	}
	for _, a := range g.Assets {
		id, err := a.AssetRef()
		if err != nil {
			return types.AssetRef{}, err
		}
		if strings.EqualFold(a.Symbol, s) {
			return id, nil
		}
		if parsed, err := types.ParseAddress(s); err == nil && parsed == id {
			return id, nil
		}
	}
	return types.AssetRef{}, fmt.Errorf("%w: %q", ErrUnknownGenesisAsset, s)
}

// Hash returns a BLAKE3 hash of the deterministic CBOR encoding of the
// genesis. Used to detect a store initialized from a different genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := codec.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
