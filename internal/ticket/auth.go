package ticket

import (
	"fmt"

	"github.com/Klingon-tech/ticketbox/pkg/codec"
	"github.com/Klingon-tech/ticketbox/pkg/crypto"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Operation names bound into signing digests.
const (
	OpInitialize      = "ticket/initialize"
	OpMint            = "ticket/mint"
	OpUpdate          = "ticket/update"
	OpUpdateTicketURI = "ticket/updateTicketURI"
)

// Authorization is a Schnorr signature over an operation digest together
// with the compressed public key that produced it. The signer's address is
// BLAKE3(public key)[:20].
type Authorization struct {
	PublicKey types.HexBytes `json:"publicKey"`
	Signature types.HexBytes `json:"signature"`
}

// Authorize signs digest with s.
func Authorize(s crypto.Signer, digest types.Hash) (*Authorization, error) {
	sig, err := s.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &Authorization{PublicKey: s.PublicKey(), Signature: sig}, nil
}

// Signer returns the address that produced a.
func (a *Authorization) Signer() types.Address {
	return crypto.AddressFromPubKey(a.PublicKey)
}

// verify checks that a is a valid signature over digest by want.
func (a *Authorization) verify(digest types.Hash, want types.Address, role string) error {
	if a == nil || len(a.Signature) == 0 {
		return fmt.Errorf("%w: missing %s signature", ErrUnauthorized, role)
	}
	if !crypto.Verify(digest, a.Signature, a.PublicKey) {
		return fmt.Errorf("%w: bad %s signature", ErrUnauthorized, role)
	}
	if got := a.Signer(); got != want {
		return fmt.Errorf("%w: %s is %s, signed by %s", ErrUnauthorized, role, want, got)
	}
	return nil
}

// envelope binds an operation body to its name and the engine program ID,
// so a signature for one operation or deployment is useless for another.
type envelope struct {
	Op      string        `cbor:"1,keyasint"`
	Program types.Address `cbor:"2,keyasint"`
	Body    any           `cbor:"3,keyasint"`
}

func digest(op string, program types.Address, body any) (types.Hash, error) {
	data, err := codec.Marshal(envelope{Op: op, Program: program, Body: body})
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode %s: %w", op, err)
	}
	return crypto.Hash(data), nil
}
