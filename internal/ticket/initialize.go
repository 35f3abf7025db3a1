package ticket

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// InitializeParams are the creator-chosen campaign settings.
type InitializeParams struct {
	CampaignID      string `cbor:"1,keyasint" json:"campaignId"`
	DisplayName     string `cbor:"2,keyasint" json:"displayName"`
	CollectionURI   string `cbor:"3,keyasint" json:"collectionUri"`
	SaleStart       int64  `cbor:"4,keyasint" json:"saleStart"`
	SaleEnd         int64  `cbor:"5,keyasint" json:"saleEnd"`
	MaxSupply       uint64 `cbor:"6,keyasint" json:"maxSupply"`
	MaxPerMint      uint64 `cbor:"7,keyasint" json:"maxPerMint"`
	Price           uint64 `cbor:"8,keyasint" json:"price"`
	MutableMetadata bool   `cbor:"9,keyasint" json:"mutableMetadata"`
}

// InitializeRequest creates a campaign. Wallet defaults to Creator; when it
// differs, the wallet must co-sign.
type InitializeRequest struct {
	Params      InitializeParams `json:"params"`
	Creator     types.Address    `json:"creator"`
	Wallet      types.Address    `json:"wallet"`
	Currency    Currency         `json:"currency"`
	Nonce       uint64           `json:"nonce"`
	CreatorAuth *Authorization   `json:"creatorAuth"`
	WalletAuth  *Authorization   `json:"walletAuth,omitempty"`
}

type initializeBody struct {
	Params   InitializeParams `cbor:"1,keyasint"`
	Creator  types.Address    `cbor:"2,keyasint"`
	Wallet   types.Address    `cbor:"3,keyasint"`
	Currency Currency         `cbor:"4,keyasint"`
	Nonce    uint64           `cbor:"5,keyasint"`
}

func (r *InitializeRequest) wallet() types.Address {
	if r.Wallet.IsZero() {
		return r.Creator
	}
	return r.Wallet
}

// SigningHash is the digest the creator (and wallet) sign.
func (r *InitializeRequest) SigningHash(program types.Address) (types.Hash, error) {
	return digest(OpInitialize, program, initializeBody{
		Params:   r.Params,
		Creator:  r.Creator,
		Wallet:   r.wallet(),
		Currency: r.Currency,
		Nonce:    r.Nonce,
	})
}

func (r *InitializeRequest) authorize(program types.Address) (types.Hash, error) {
	h, err := r.SigningHash(program)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := r.CreatorAuth.verify(h, r.Creator, "creator"); err != nil {
		return types.Hash{}, err
	}
	if w := r.wallet(); w != r.Creator {
		if err := r.WalletAuth.verify(h, w, "wallet"); err != nil {
			return types.Hash{}, err
		}
	}
	return h, nil
}

// Initialize creates the campaign record and its collection certificate in
// one transaction.
func (e *Engine) Initialize(ctx context.Context, req InitializeRequest) (*Campaign, error) {
	h, err := req.authorize(e.program)
	if err != nil {
		return nil, err
	}
	p := req.Params
	if len(p.CampaignID) == 0 || len(p.CampaignID) > MaxCampaignIDLen {
		return nil, fmt.Errorf("%w: campaign id must be 1-%d bytes", ErrInvalidParams, MaxCampaignIDLen)
	}
	if err := req.Currency.validate(); err != nil {
		return nil, err
	}
	proto := &Campaign{
		CampaignID:      p.CampaignID,
		Creator:         req.Creator,
		Wallet:          req.wallet(),
		DisplayName:     p.DisplayName,
		CollectionURI:   p.CollectionURI,
		SaleStart:       p.SaleStart,
		SaleEnd:         p.SaleEnd,
		MaxSupply:       p.MaxSupply,
		MaxPerMint:      p.MaxPerMint,
		Price:           p.Price,
		Currency:        req.Currency,
		MutableMetadata: p.MutableMetadata,
	}
	if err := proto.validateFields(); err != nil {
		return nil, err
	}
	if err := proto.validateWindow(); err != nil {
		return nil, err
	}
	addr, bump, err := derive.CampaignAddress(e.program, p.CampaignID, req.Creator)
	if err != nil {
		return nil, deriveErr("campaign address", err)
	}
	collection, _, err := derive.CollectionAsset(e.program, addr)
	if err != nil {
		return nil, deriveErr("collection asset", err)
	}

	var created *Campaign
	err = e.update(ctx, OpInitialize, func(txn storage.Txn) error {
		recs := newRecords(txn)
		exists, err := recs.exists(addr)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, addr)
		}
		if !req.Currency.IsNative() {
			ok, err := e.ledger.AssetExists(txn, req.Currency.Asset)
			if err != nil {
				return collaboratorErr("asset lookup", err)
			}
			if !ok {
				return fmt.Errorf("%w: unknown asset %s", ErrCurrencyMismatch, req.Currency.Asset)
			}
		}
		if err := recs.consume(h); err != nil {
			return err
		}

		c := *proto
		c.Address = addr
		c.Bump = bump
		c.Collection = collection
		c.MintedCount = 0
		c.Version = 1

		if err := e.issueCollection(txn, &c); err != nil {
			return err
		}
		if err := recs.save(&c); err != nil {
			return err
		}
		if err := recs.index(&c); err != nil {
			return err
		}
		created = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("campaign", created.Address.String()).
		Str("id", created.CampaignID).
		Str("creator", created.Creator.String()).
		Uint64("max_supply", created.MaxSupply).
		Str("currency", created.Currency.String()).
		Msg("Campaign initialized")
	return created, nil
}

// issueCollection mints the collection certificate to the creator and
// marks it as a sized collection under the campaign's authority.
func (e *Engine) issueCollection(txn storage.Txn, c *Campaign) error {
	if err := e.issuer.MintAsset(txn, c.Collection, c.Creator); err != nil {
		return collaboratorErr("mint collection", err)
	}
	_, err := e.issuer.AttachMetadata(txn, &certificate.Metadata{
		Asset:             c.Collection,
		Name:              c.DisplayName,
		Symbol:            CollectionSymbol,
		URI:               c.CollectionURI,
		SellerFeeBps:      SellerFeeBps,
		UpdateAuthority:   c.Address,
		IsMutable:         true,
		CollectionDetails: &certificate.CollectionDetails{Size: 0},
	})
	if err != nil {
		return collaboratorErr("collection metadata", err)
	}
	if _, err := e.issuer.CreateEdition(txn, c.Collection, 0); err != nil {
		return collaboratorErr("collection edition", err)
	}
	return nil
}
