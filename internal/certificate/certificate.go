// Package certificate issues non-fungible assets and keeps their metadata
// and edition records. Records live at addresses derived from the metadata
// program ID and the asset ID, mirroring how the engine derives its own
// records.
package certificate

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/codec"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Certificate errors.
var (
	ErrAssetExists     = errors.New("asset already exists")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrMetadataExists  = errors.New("metadata already exists")
	ErrNoMetadata      = errors.New("metadata not found")
	ErrEditionExists   = errors.New("edition already exists")
	ErrNotAuthority    = errors.New("not the update authority")
	ErrImmutable       = errors.New("metadata is immutable")
	ErrNotCollection   = errors.New("asset is not a sized collection")
	ErrWrongCollection = errors.New("item does not reference this collection")
	ErrAlreadyVerified = errors.New("collection membership already verified")
	ErrFieldTooLong    = errors.New("metadata field too long")
)

// Field limits.
const (
	MaxNameLen   = 288
	MaxSymbolLen = 10
	MaxURILen    = 1000
)

var (
	prefixCertificate = []byte("c/")
	prefixAsset       = []byte("a/")
	prefixRecord      = []byte("r/") // metadata and edition records by derived address
)

// Asset is a non-fungible unit with a single owner.
type Asset struct {
	ID     types.Address `cbor:"1,keyasint" json:"id"`
	Owner  types.Address `cbor:"2,keyasint" json:"owner"`
	Supply uint64        `cbor:"3,keyasint" json:"supply"`
}

// CollectionRef links an item to its collection.
type CollectionRef struct {
	Key      types.Address `cbor:"1,keyasint" json:"key"`
	Verified bool          `cbor:"2,keyasint" json:"verified"`
}

// CollectionDetails marks a metadata record as a sized collection.
type CollectionDetails struct {
	Size uint64 `cbor:"1,keyasint" json:"size"`
}

// Metadata describes an asset.
type Metadata struct {
	Asset             types.Address      `cbor:"1,keyasint" json:"asset"`
	Name              string             `cbor:"2,keyasint" json:"name"`
	Symbol            string             `cbor:"3,keyasint" json:"symbol"`
	URI               string             `cbor:"4,keyasint" json:"uri"`
	SellerFeeBps      uint16             `cbor:"5,keyasint" json:"sellerFeeBps"`
	UpdateAuthority   types.Address      `cbor:"6,keyasint" json:"updateAuthority"`
	IsMutable         bool               `cbor:"7,keyasint" json:"isMutable"`
	Collection        *CollectionRef     `cbor:"8,keyasint,omitempty" json:"collection,omitempty"`
	CollectionDetails *CollectionDetails `cbor:"9,keyasint,omitempty" json:"collectionDetails,omitempty"`
}

// Edition is the master edition record of an asset. MaxSupply 0 means no
// prints can be made.
type Edition struct {
	Asset     types.Address `cbor:"1,keyasint" json:"asset"`
	MaxSupply uint64        `cbor:"2,keyasint" json:"maxSupply"`
	Supply    uint64        `cbor:"3,keyasint" json:"supply"`
}

// Certificate bundles everything known about one asset.
type Certificate struct {
	Asset           Asset         `json:"asset"`
	Metadata        *Metadata     `json:"metadata,omitempty"`
	MetadataAddress types.Address `json:"metadataAddress"`
	Edition         *Edition      `json:"edition,omitempty"`
	EditionAddress  types.Address `json:"editionAddress"`
}

// MetadataPatch changes selected fields of a mutable metadata record.
// Nil fields are left untouched.
type MetadataPatch struct {
	Name *string
	URI  *string
}

// Issuer is the non-fungible issuance and metadata service.
type Issuer struct {
	program types.Address
}

// NewIssuer creates an issuer whose records are derived under program.
func NewIssuer(program types.Address) *Issuer {
	return &Issuer{program: program}
}

// Program returns the metadata program ID.
func (is *Issuer) Program() types.Address {
	return is.program
}

func scoped(txn storage.Txn) storage.Txn {
	return storage.NewPrefixTxn(txn, prefixCertificate)
}

// MintAsset creates a new asset with supply 1 owned by owner.
func (is *Issuer) MintAsset(txn storage.Txn, id, owner types.Address) error {
	s := scoped(txn)
	ok, err := s.Has(key(prefixAsset, id))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, id)
	}
	return put(s, key(prefixAsset, id), &Asset{ID: id, Owner: owner, Supply: 1})
}

// Asset returns the asset record for id.
func (is *Issuer) Asset(txn storage.Txn, id types.Address) (*Asset, error) {
	var a Asset
	if err := get(scoped(txn), key(prefixAsset, id), &a); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
		}
		return nil, err
	}
	return &a, nil
}

// AttachMetadata stores md at the derived metadata address of md.Asset.
func (is *Issuer) AttachMetadata(txn storage.Txn, md *Metadata) (types.Address, error) {
	if len(md.Name) > MaxNameLen || len(md.Symbol) > MaxSymbolLen || len(md.URI) > MaxURILen {
		return types.Address{}, ErrFieldTooLong
	}
	if _, err := is.Asset(txn, md.Asset); err != nil {
		return types.Address{}, err
	}
	addr, _, err := derive.MetadataAddress(is.program, md.Asset)
	if err != nil {
		return types.Address{}, err
	}
	s := scoped(txn)
	ok, err := s.Has(key(prefixRecord, addr))
	if err != nil {
		return types.Address{}, err
	}
	if ok {
		return types.Address{}, fmt.Errorf("%w: %s", ErrMetadataExists, md.Asset)
	}
	rec := *md
	if rec.Collection != nil {
		// Membership is only ever verified through VerifyCollectionMember.
		rec.Collection = &CollectionRef{Key: rec.Collection.Key}
	}
	return addr, put(s, key(prefixRecord, addr), &rec)
}

// Metadata returns the metadata record of asset.
func (is *Issuer) Metadata(txn storage.Txn, asset types.Address) (*Metadata, error) {
	addr, _, err := derive.MetadataAddress(is.program, asset)
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := get(scoped(txn), key(prefixRecord, addr), &md); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoMetadata, asset)
		}
		return nil, err
	}
	return &md, nil
}

// CreateEdition creates the master edition of an asset that already has
// metadata.
func (is *Issuer) CreateEdition(txn storage.Txn, asset types.Address, maxSupply uint64) (types.Address, error) {
	if _, err := is.Metadata(txn, asset); err != nil {
		return types.Address{}, err
	}
	addr, _, err := derive.EditionAddress(is.program, asset)
	if err != nil {
		return types.Address{}, err
	}
	s := scoped(txn)
	ok, err := s.Has(key(prefixRecord, addr))
	if err != nil {
		return types.Address{}, err
	}
	if ok {
		return types.Address{}, fmt.Errorf("%w: %s", ErrEditionExists, asset)
	}
	return addr, put(s, key(prefixRecord, addr), &Edition{Asset: asset, MaxSupply: maxSupply})
}

// Edition returns the edition record of asset.
func (is *Issuer) Edition(txn storage.Txn, asset types.Address) (*Edition, error) {
	addr, _, err := derive.EditionAddress(is.program, asset)
	if err != nil {
		return nil, err
	}
	var ed Edition
	if err := get(scoped(txn), key(prefixRecord, addr), &ed); err != nil {
		return nil, err
	}
	return &ed, nil
}

// VerifyCollectionMember marks item as a verified member of collection and
// grows the collection size by one. authority must be the collection's
// update authority.
func (is *Issuer) VerifyCollectionMember(txn storage.Txn, item, collection, authority types.Address) error {
	col, err := is.Metadata(txn, collection)
	if err != nil {
		return err
	}
	if col.CollectionDetails == nil {
		return fmt.Errorf("%w: %s", ErrNotCollection, collection)
	}
	if col.UpdateAuthority != authority {
		return ErrNotAuthority
	}
	md, err := is.Metadata(txn, item)
	if err != nil {
		return err
	}
	if md.Collection == nil || md.Collection.Key != collection {
		return ErrWrongCollection
	}
	if md.Collection.Verified {
		return ErrAlreadyVerified
	}

	md.Collection.Verified = true
	col.CollectionDetails.Size++
	if err := is.putMetadata(txn, md); err != nil {
		return err
	}
	return is.putMetadata(txn, col)
}

// IsVerifiedMember reports whether item is a verified member of collection.
func (is *Issuer) IsVerifiedMember(txn storage.Txn, item, collection types.Address) (bool, error) {
	md, err := is.Metadata(txn, item)
	if errors.Is(err, ErrNoMetadata) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return md.Collection != nil && md.Collection.Key == collection && md.Collection.Verified, nil
}

// UpdateMetadata applies patch to a mutable metadata record.
func (is *Issuer) UpdateMetadata(txn storage.Txn, asset, authority types.Address, patch MetadataPatch) error {
	md, err := is.Metadata(txn, asset)
	if err != nil {
		return err
	}
	if md.UpdateAuthority != authority {
		return ErrNotAuthority
	}
	if !md.IsMutable {
		return ErrImmutable
	}
	if patch.Name != nil {
		if len(*patch.Name) > MaxNameLen {
			return ErrFieldTooLong
		}
		md.Name = *patch.Name
	}
	if patch.URI != nil {
		if len(*patch.URI) > MaxURILen {
			return ErrFieldTooLong
		}
		md.URI = *patch.URI
	}
	return is.putMetadata(txn, md)
}

// Certificate gathers the asset, metadata and edition records of id.
func (is *Issuer) Certificate(txn storage.Txn, id types.Address) (*Certificate, error) {
	a, err := is.Asset(txn, id)
	if err != nil {
		return nil, err
	}
	c := &Certificate{Asset: *a}
	if c.MetadataAddress, _, err = derive.MetadataAddress(is.program, id); err != nil {
		return nil, err
	}
	if c.EditionAddress, _, err = derive.EditionAddress(is.program, id); err != nil {
		return nil, err
	}
	if md, err := is.Metadata(txn, id); err == nil {
		c.Metadata = md
	} else if !errors.Is(err, ErrNoMetadata) {
		return nil, err
	}
	if ed, err := is.Edition(txn, id); err == nil {
		c.Edition = ed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return c, nil
}

func (is *Issuer) putMetadata(txn storage.Txn, md *Metadata) error {
	addr, _, err := derive.MetadataAddress(is.program, md.Asset)
	if err != nil {
		return err
	}
	return put(scoped(txn), key(prefixRecord, addr), md)
}

func key(prefix []byte, addr types.Address) []byte {
	k := make([]byte, len(prefix)+types.AddressSize)
	copy(k, prefix)
	copy(k[len(prefix):], addr[:])
	return k
}

func put(s storage.Txn, k []byte, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("certificate marshal: %w", err)
	}
	return s.Put(k, data)
}

func get(s storage.Txn, k []byte, v any) error {
	data, err := s.Get(k)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("certificate unmarshal: %w", err)
	}
	return nil
}
