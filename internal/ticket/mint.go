package ticket

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// MintRequest buys one ticket. Currency is the asset the buyer presents
// for payment; it must match a fungible campaign currency and is ignored
// for native-unit campaigns.
type MintRequest struct {
	Campaign  types.Address   `json:"campaign"`
	Buyer     types.Address   `json:"buyer"`
	TicketURI string          `json:"ticketUri"`
	Currency  *types.AssetRef `json:"currency,omitempty"`
	Nonce     uint64          `json:"nonce"`
	Auth      *Authorization  `json:"auth"`
}

type mintBody struct {
	Campaign  types.Address   `cbor:"1,keyasint"`
	Buyer     types.Address   `cbor:"2,keyasint"`
	TicketURI string          `cbor:"3,keyasint"`
	Currency  *types.AssetRef `cbor:"4,keyasint"`
	Nonce     uint64          `cbor:"5,keyasint"`
}

// SigningHash is the digest the buyer signs.
func (r *MintRequest) SigningHash(program types.Address) (types.Hash, error) {
	return digest(OpMint, program, mintBody{
		Campaign:  r.Campaign,
		Buyer:     r.Buyer,
		TicketURI: r.TicketURI,
		Currency:  r.Currency,
		Nonce:     r.Nonce,
	})
}

// Mint issues the next ticket of a campaign to the buyer. Payment, the
// ticket certificate and the minted-count increment commit together or not
// at all.
func (e *Engine) Mint(ctx context.Context, req MintRequest) (*MintReceipt, error) {
	h, err := req.SigningHash(e.program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := req.Auth.verify(h, req.Buyer, "buyer"); err != nil {
		return nil, err
	}
	if len(req.TicketURI) > MaxURILen {
		return nil, fmt.Errorf("%w: ticket uri exceeds %d bytes", ErrInvalidParams, MaxURILen)
	}

	var receipt *MintReceipt
	err = e.update(ctx, OpMint, func(txn storage.Txn) error {
		recs := newRecords(txn)
		c, err := recs.load(req.Campaign)
		if err != nil {
			return err
		}
		if err := c.checkWindow(e.now()); err != nil {
			return err
		}
		if c.MintedCount >= c.MaxSupply {
			return fmt.Errorf("%w: %d of %d minted", ErrSupplyExhausted, c.MintedCount, c.MaxSupply)
		}
		paid, err := e.collect(txn, c, req.Buyer, req.Currency)
		if err != nil {
			return err
		}
		if err := recs.consume(h); err != nil {
			return err
		}

		seq := c.MintedCount + 1
		ticketID, _, err := derive.TicketAsset(e.program, c.Address, seq)
		if err != nil {
			return deriveErr("ticket asset", err)
		}
		if err := e.issueTicket(txn, c, ticketID, seq, req.Buyer, req.TicketURI); err != nil {
			return err
		}

		c.MintedCount = seq
		c.Version++
		if err := recs.save(c); err != nil {
			return err
		}
		receipt = &MintReceipt{
			Campaign:    c.Address,
			Ticket:      ticketID,
			Sequence:    seq,
			MintedCount: c.MintedCount,
			MaxSupply:   c.MaxSupply,
			Paid:        paid,
			Currency:    c.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("campaign", receipt.Campaign.String()).
		Str("ticket", receipt.Ticket.String()).
		Str("buyer", req.Buyer.String()).
		Uint64("seq", receipt.Sequence).
		Uint64("paid", receipt.Paid).
		Msg("Ticket minted")
	return receipt, nil
}

// issueTicket mints the ticket certificate to the buyer and links it to the
// campaign collection as a verified member.
func (e *Engine) issueTicket(txn storage.Txn, c *Campaign, id types.Address, seq uint64, buyer types.Address, uri string) error {
	if err := e.issuer.MintAsset(txn, id, buyer); err != nil {
		return collaboratorErr("mint ticket", err)
	}
	_, err := e.issuer.AttachMetadata(txn, &certificate.Metadata{
		Asset:           id,
		Name:            fmt.Sprintf("%s #%d", c.DisplayName, seq),
		Symbol:          TicketSymbol,
		URI:             uri,
		SellerFeeBps:    SellerFeeBps,
		UpdateAuthority: c.Address,
		IsMutable:       c.MutableMetadata,
		Collection:      &certificate.CollectionRef{Key: c.Collection},
	})
	if err != nil {
		return collaboratorErr("ticket metadata", err)
	}
	if _, err := e.issuer.CreateEdition(txn, id, 0); err != nil {
		return collaboratorErr("ticket edition", err)
	}
	if err := e.issuer.VerifyCollectionMember(txn, id, c.Collection, c.Address); err != nil {
		return collaboratorErr("verify collection", err)
	}
	return nil
}
