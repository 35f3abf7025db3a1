package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// UpdateParams patches a campaign. Nil fields are left unchanged. The
// creator, wallet, currency and minted count can never change.
type UpdateParams struct {
	DisplayName     *string `cbor:"1,keyasint" json:"displayName,omitempty"`
	CollectionURI   *string `cbor:"2,keyasint" json:"collectionUri,omitempty"`
	SaleStart       *int64  `cbor:"3,keyasint" json:"saleStart,omitempty"`
	SaleEnd         *int64  `cbor:"4,keyasint" json:"saleEnd,omitempty"`
	MaxSupply       *uint64 `cbor:"5,keyasint" json:"maxSupply,omitempty"`
	Price           *uint64 `cbor:"6,keyasint" json:"price,omitempty"`
	MutableMetadata *bool   `cbor:"7,keyasint" json:"mutableMetadata,omitempty"`
}

func (p UpdateParams) empty() bool {
	return p.DisplayName == nil && p.CollectionURI == nil && p.SaleStart == nil &&
		p.SaleEnd == nil && p.MaxSupply == nil && p.Price == nil && p.MutableMetadata == nil
}

func (p UpdateParams) apply(c *Campaign) {
	if p.DisplayName != nil {
		c.DisplayName = *p.DisplayName
	}
	if p.CollectionURI != nil {
		c.CollectionURI = *p.CollectionURI
	}
	if p.SaleStart != nil {
		c.SaleStart = *p.SaleStart
	}
	if p.SaleEnd != nil {
		c.SaleEnd = *p.SaleEnd
	}
	if p.MaxSupply != nil {
		c.MaxSupply = *p.MaxSupply
	}
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.MutableMetadata != nil {
		c.MutableMetadata = *p.MutableMetadata
	}
}

// UpdateRequest is a creator-signed campaign patch.
type UpdateRequest struct {
	Campaign types.Address  `json:"campaign"`
	Patch    UpdateParams   `json:"patch"`
	Nonce    uint64         `json:"nonce"`
	Auth     *Authorization `json:"auth"`
}

type updateBody struct {
	Campaign types.Address `cbor:"1,keyasint"`
	Patch    UpdateParams  `cbor:"2,keyasint"`
	Nonce    uint64        `cbor:"3,keyasint"`
}

// SigningHash is the digest the creator signs.
func (r *UpdateRequest) SigningHash(program types.Address) (types.Hash, error) {
	return digest(OpUpdate, program, updateBody{Campaign: r.Campaign, Patch: r.Patch, Nonce: r.Nonce})
}

// Update applies a creator patch. Name and URI changes are mirrored onto
// the collection certificate's metadata.
func (e *Engine) Update(ctx context.Context, req UpdateRequest) (*Campaign, error) {
	if req.Patch.empty() {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidParams)
	}
	h, err := req.SigningHash(e.program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	var updated *Campaign
	err = e.update(ctx, OpUpdate, func(txn storage.Txn) error {
		recs := newRecords(txn)
		c, err := recs.load(req.Campaign)
		if err != nil {
			return err
		}
		if err := req.Auth.verify(h, c.Creator, "creator"); err != nil {
			return err
		}
		req.Patch.apply(c)
		if err := c.validateFields(); err != nil {
			return err
		}
		if err := c.validateWindow(); err != nil {
			return err
		}
		if err := recs.consume(h); err != nil {
			return err
		}

		if req.Patch.DisplayName != nil || req.Patch.CollectionURI != nil {
			err := e.issuer.UpdateMetadata(txn, c.Collection, c.Address, certificate.MetadataPatch{
				Name: req.Patch.DisplayName,
				URI:  req.Patch.CollectionURI,
			})
			if err != nil && !errors.Is(err, certificate.ErrImmutable) {
				return collaboratorErr("collection metadata", err)
			}
		}

		c.Version++
		if err := recs.save(c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("campaign", updated.Address.String()).
		Uint64("version", updated.Version).
		Msg("Campaign updated")
	return updated, nil
}

// UpdateTicketURIRequest replaces the metadata URI of one ticket.
type UpdateTicketURIRequest struct {
	Campaign types.Address  `json:"campaign"`
	Ticket   types.Address  `json:"ticket"`
	URI      string         `json:"uri"`
	Nonce    uint64         `json:"nonce"`
	Auth     *Authorization `json:"auth"`
}

type updateTicketURIBody struct {
	Campaign types.Address `cbor:"1,keyasint"`
	Ticket   types.Address `cbor:"2,keyasint"`
	URI      string        `cbor:"3,keyasint"`
	Nonce    uint64        `cbor:"4,keyasint"`
}

// SigningHash is the digest the creator signs.
func (r *UpdateTicketURIRequest) SigningHash(program types.Address) (types.Hash, error) {
	return digest(OpUpdateTicketURI, program, updateTicketURIBody{
		Campaign: r.Campaign, Ticket: r.Ticket, URI: r.URI, Nonce: r.Nonce,
	})
}

// UpdateTicketURI rewrites a ticket's metadata URI. Only the creator may do
// so, and only while the campaign allows metadata changes.
func (e *Engine) UpdateTicketURI(ctx context.Context, req UpdateTicketURIRequest) error {
	if len(req.URI) > MaxURILen {
		return fmt.Errorf("%w: ticket uri exceeds %d bytes", ErrInvalidParams, MaxURILen)
	}
	h, err := req.SigningHash(e.program)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	err = e.update(ctx, OpUpdateTicketURI, func(txn storage.Txn) error {
		recs := newRecords(txn)
		c, err := recs.load(req.Campaign)
		if err != nil {
			return err
		}
		if err := req.Auth.verify(h, c.Creator, "creator"); err != nil {
			return err
		}
		if !c.MutableMetadata {
			return fmt.Errorf("%w: campaign %s", ErrImmutableMetadata, c.Address)
		}
		member, err := e.issuer.IsVerifiedMember(txn, req.Ticket, c.Collection)
		if err != nil {
			return collaboratorErr("membership", err)
		}
		if !member {
			return fmt.Errorf("%w: %s", ErrNotMember, req.Ticket)
		}
		if err := recs.consume(h); err != nil {
			return err
		}
		uri := req.URI
		if err := e.issuer.UpdateMetadata(txn, req.Ticket, c.Address, certificate.MetadataPatch{URI: &uri}); err != nil {
			return collaboratorErr("ticket metadata", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Str("campaign", req.Campaign.String()).
		Str("ticket", req.Ticket.String()).
		Msg("Ticket metadata updated")
	return nil
}
