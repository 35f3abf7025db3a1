// Package ledger implements fungible balances over a transactional store.
//
// Every call takes the caller's storage.Txn, so payments commit or roll
// back together with whatever else the caller writes in that transaction.
// The native unit is the reserved asset types.NativeAsset and is always
// registered.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/codec"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Ledger errors.
var (
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrAssetExists         = errors.New("asset already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrInvalidAsset        = errors.New("invalid asset")
)

var (
	prefixLedger  = []byte("l/")
	prefixAsset   = []byte("a/") // a/<asset(20)> -> Asset CBOR
	prefixBalance = []byte("b/") // b/<asset(20)><owner(20)> -> uint64 BE
)

// Asset describes a registered fungible asset.
type Asset struct {
	ID       types.AssetRef `cbor:"1,keyasint" json:"id"`
	Symbol   string         `cbor:"2,keyasint" json:"symbol"`
	Decimals uint8          `cbor:"3,keyasint" json:"decimals"`
	Issuer   types.Address  `cbor:"4,keyasint" json:"issuer"`
}

// NativeSymbol is the ticker of the native unit.
const NativeSymbol = "TBX"

// Native is the always-present description of the native unit.
var Native = Asset{ID: types.NativeAsset, Symbol: NativeSymbol, Decimals: 9}

// Ledger is stateless; all state lives in the transaction it is handed.
type Ledger struct{}

// New creates a ledger.
func New() *Ledger {
	return &Ledger{}
}

func scoped(txn storage.Txn) storage.Txn {
	return storage.NewPrefixTxn(txn, prefixLedger)
}

// RegisterAsset records a new fungible asset. The native asset cannot be
// registered.
func (l *Ledger) RegisterAsset(txn storage.Txn, a Asset) error {
	if a.ID == types.NativeAsset {
		return fmt.Errorf("%w: native asset is reserved", ErrInvalidAsset)
	}
	if a.Symbol == "" || len(a.Symbol) > 16 {
		return fmt.Errorf("%w: symbol must be 1-16 bytes", ErrInvalidAsset)
	}
	s := scoped(txn)
	ok, err := s.Has(assetKey(a.ID))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, a.ID)
	}
	data, err := codec.Marshal(&a)
	if err != nil {
		return fmt.Errorf("asset marshal: %w", err)
	}
	return s.Put(assetKey(a.ID), data)
}

// AssetExists reports whether id is the native unit or a registered asset.
func (l *Ledger) AssetExists(txn storage.Txn, id types.AssetRef) (bool, error) {
	if id == types.NativeAsset {
		return true, nil
	}
	return scoped(txn).Has(assetKey(id))
}

// Asset returns the description of id.
func (l *Ledger) Asset(txn storage.Txn, id types.AssetRef) (*Asset, error) {
	if id == types.NativeAsset {
		n := Native
		return &n, nil
	}
	data, err := scoped(txn).Get(assetKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	if err != nil {
		return nil, fmt.Errorf("asset get: %w", err)
	}
	var a Asset
	if err := codec.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("asset unmarshal: %w", err)
	}
	return &a, nil
}

// Assets lists the native unit followed by every registered asset.
func (l *Ledger) Assets(txn storage.Txn) ([]Asset, error) {
	out := []Asset{Native}
	err := scoped(txn).ForEach(prefixAsset, func(key, value []byte) error {
		var a Asset
		if err := codec.Unmarshal(value, &a); err != nil {
			return fmt.Errorf("decode asset %x: %w", key[len(prefixAsset):], err)
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns owner's holding of asset. Unknown owners hold zero.
func (l *Ledger) Balance(txn storage.Txn, asset types.AssetRef, owner types.Address) (uint64, error) {
	ok, err := l.AssetExists(txn, asset)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return readBalance(scoped(txn), asset, owner)
}

// Credit adds amount to owner's balance. It is used for genesis
// allocations only; there is no other way to create units.
func (l *Ledger) Credit(txn storage.Txn, asset types.AssetRef, owner types.Address, amount uint64) error {
	ok, err := l.AssetExists(txn, asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	s := scoped(txn)
	bal, err := readBalance(s, asset, owner)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return writeBalance(s, asset, owner, bal+amount)
}

// Transfer moves amount of asset from one owner to another. A zero amount
// is a no-op.
func (l *Ledger) Transfer(txn storage.Txn, asset types.AssetRef, from, to types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	ok, err := l.AssetExists(txn, asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	s := scoped(txn)
	fromBal, err := readBalance(s, asset, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := readBalance(s, asset, to)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := writeBalance(s, asset, from, fromBal-amount); err != nil {
		return err
	}
	return writeBalance(s, asset, to, toBal+amount)
}

// Holding is one non-zero balance of an owner.
type Holding struct {
	Asset  types.AssetRef `json:"asset"`
	Amount uint64         `json:"amount"`
}

// Holdings returns every non-zero balance held by owner.
func (l *Ledger) Holdings(txn storage.Txn, owner types.Address) ([]Holding, error) {
	assets, err := l.Assets(txn)
	if err != nil {
		return nil, err
	}
	s := scoped(txn)
	var out []Holding
	for _, a := range assets {
		bal, err := readBalance(s, a.ID, owner)
		if err != nil {
			return nil, err
		}
		if bal > 0 {
			out = append(out, Holding{Asset: a.ID, Amount: bal})
		}
	}
	return out, nil
}

func readBalance(s storage.Txn, asset types.AssetRef, owner types.Address) (uint64, error) {
	data, err := s.Get(balanceKey(asset, owner))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance entry (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func writeBalance(s storage.Txn, asset types.AssetRef, owner types.Address, amount uint64) error {
	if amount == 0 {
		return s.Delete(balanceKey(asset, owner))
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return s.Put(balanceKey(asset, owner), buf[:])
}

func assetKey(id types.AssetRef) []byte {
	key := make([]byte, len(prefixAsset)+types.AddressSize)
	copy(key, prefixAsset)
	copy(key[len(prefixAsset):], id[:])
	return key
}

func balanceKey(asset types.AssetRef, owner types.Address) []byte {
	key := make([]byte, len(prefixBalance)+2*types.AddressSize)
	off := copy(key, prefixBalance)
	off += copy(key[off:], asset[:])
	copy(key[off:], owner[:])
	return key
}
