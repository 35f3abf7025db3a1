package ticket

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Field limits for campaign parameters.
const (
	MaxCampaignIDLen  = 32
	MaxDisplayNameLen = 256
	MaxURILen         = 1000
)

// Metadata constants for issued certificates.
const (
	CollectionSymbol = "BOX"
	TicketSymbol     = "TICKET"
	SellerFeeBps     = 200
)

// CurrencyKind tags the Currency variant.
type CurrencyKind uint8

const (
	CurrencyNative CurrencyKind = iota
	CurrencyFungible
)

// Currency is the payment denomination of a campaign: the native unit or a
// specific fungible asset.
type Currency struct {
	Kind  CurrencyKind   `cbor:"1,keyasint"`
	Asset types.AssetRef `cbor:"2,keyasint"`
}

// Native returns the native-unit currency.
func Native() Currency {
	return Currency{Kind: CurrencyNative}
}

// Fungible returns the currency for asset a.
func Fungible(a types.AssetRef) Currency {
	return Currency{Kind: CurrencyFungible, Asset: a}
}

// IsNative reports whether c is the native unit.
func (c Currency) IsNative() bool {
	return c.Kind == CurrencyNative
}

// AssetRef returns the ledger asset the currency is paid in.
func (c Currency) AssetRef() types.AssetRef {
	if c.IsNative() {
		return types.NativeAsset
	}
	return c.Asset
}

func (c Currency) String() string {
	if c.IsNative() {
		return "native"
	}
	return "fungible:" + c.Asset.String()
}

func (c Currency) validate() error {
	switch c.Kind {
	case CurrencyNative:
		if !c.Asset.IsZero() {
			return fmt.Errorf("%w: native currency carries an asset", ErrInvalidParams)
		}
	case CurrencyFungible:
		if c.Asset == types.NativeAsset {
			return fmt.Errorf("%w: fungible currency needs an asset", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown currency kind %d", ErrInvalidParams, c.Kind)
	}
	return nil
}

type currencyJSON struct {
	Kind  string          `json:"kind"`
	Asset *types.AssetRef `json:"asset,omitempty"`
}

// MarshalJSON encodes {"kind":"native"} or {"kind":"fungible","asset":"..."}.
func (c Currency) MarshalJSON() ([]byte, error) {
	if c.IsNative() {
		return json.Marshal(currencyJSON{Kind: "native"})
	}
	a := c.Asset
	return json.Marshal(currencyJSON{Kind: "fungible", Asset: &a})
}

// UnmarshalJSON accepts the MarshalJSON form.
func (c *Currency) UnmarshalJSON(data []byte) error {
	var v currencyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case "", "native":
		*c = Native()
	case "fungible":
		if v.Asset == nil {
			return fmt.Errorf("fungible currency without asset")
		}
		*c = Fungible(*v.Asset)
	default:
		return fmt.Errorf("unknown currency kind %q", v.Kind)
	}
	return nil
}

// Campaign is the durable record of one ticket sale.
type Campaign struct {
	Address         types.Address `cbor:"1,keyasint" json:"address"`
	CampaignID      string        `cbor:"2,keyasint" json:"campaignId"`
	Creator         types.Address `cbor:"3,keyasint" json:"creator"`
	Wallet          types.Address `cbor:"4,keyasint" json:"wallet"`
	DisplayName     string        `cbor:"5,keyasint" json:"displayName"`
	CollectionURI   string        `cbor:"6,keyasint" json:"collectionUri"`
	SaleStart       int64         `cbor:"7,keyasint" json:"saleStart"`
	SaleEnd         int64         `cbor:"8,keyasint" json:"saleEnd"`
	MaxSupply       uint64        `cbor:"9,keyasint" json:"maxSupply"`
	MaxPerMint      uint64        `cbor:"10,keyasint" json:"maxPerMint"`
	MintedCount     uint64        `cbor:"11,keyasint" json:"mintedCount"`
	Price           uint64        `cbor:"12,keyasint" json:"price"`
	Currency        Currency      `cbor:"13,keyasint" json:"currency"`
	MutableMetadata bool          `cbor:"14,keyasint" json:"mutableMetadata"`
	Collection      types.Address `cbor:"15,keyasint" json:"collection"`
	Bump            uint8         `cbor:"16,keyasint" json:"bump"`
	Version         uint64        `cbor:"17,keyasint" json:"version"`
}

// Remaining returns how many tickets can still be minted.
func (c *Campaign) Remaining() uint64 {
	return c.MaxSupply - c.MintedCount
}

// checkWindow validates now against [SaleStart, SaleEnd).
func (c *Campaign) checkWindow(now int64) error {
	if now < c.SaleStart {
		return fmt.Errorf("%w: opens at %d, now %d", ErrSaleNotOpen, c.SaleStart, now)
	}
	if now >= c.SaleEnd {
		return fmt.Errorf("%w: closed at %d, now %d", ErrSaleClosed, c.SaleEnd, now)
	}
	return nil
}

// validateFields checks the descriptive and supply bounds of a record.
func (c *Campaign) validateFields() error {
	switch {
	case len(c.DisplayName) == 0 || len(c.DisplayName) > MaxDisplayNameLen:
		return fmt.Errorf("%w: display name must be 1-%d bytes", ErrInvalidParams, MaxDisplayNameLen)
	case len(c.CollectionURI) > MaxURILen:
		return fmt.Errorf("%w: collection uri exceeds %d bytes", ErrInvalidParams, MaxURILen)
	case c.MaxSupply == 0:
		return fmt.Errorf("%w: max supply must be positive", ErrInvalidParams)
	case c.MaxPerMint == 0 || c.MaxPerMint > c.MaxSupply:
		return fmt.Errorf("%w: max per mint must be in [1, max supply]", ErrInvalidParams)
	case c.MaxSupply < c.MintedCount:
		return fmt.Errorf("%w: max supply %d below minted count %d", ErrInvalidParams, c.MaxSupply, c.MintedCount)
	}
	return nil
}

func (c *Campaign) validateWindow() error {
	if c.SaleStart >= c.SaleEnd {
		return fmt.Errorf("%w: start %d must be before end %d", ErrInvalidWindow, c.SaleStart, c.SaleEnd)
	}
	return nil
}

// MintReceipt is returned by a successful Mint.
type MintReceipt struct {
	Campaign    types.Address `json:"campaign"`
	Ticket      types.Address `json:"ticket"`
	Sequence    uint64        `json:"sequence"`
	MintedCount uint64        `json:"mintedCount"`
	MaxSupply   uint64        `json:"maxSupply"`
	Paid        uint64        `json:"paid"`
	Currency    Currency      `json:"currency"`
}
