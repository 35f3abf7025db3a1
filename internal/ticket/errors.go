package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
)

// Terminal error kinds. Every failed operation returns exactly one of these
// (wrapped with detail), so callers match with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidWindow       = errors.New("invalid sale window")
	ErrAlreadyInitialized  = errors.New("campaign already initialized")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrSaleNotOpen         = errors.New("sale not open")
	ErrSaleClosed          = errors.New("sale closed")
	ErrSupplyExhausted     = errors.New("supply exhausted")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDerivationExhausted = errors.New("derivation exhausted")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrInvalidParams       = errors.New("invalid parameters")
	ErrImmutableMetadata   = errors.New("metadata is immutable")
	ErrNotMember           = errors.New("ticket is not a member of the campaign collection")
)

// Kinds lists every terminal error kind.
var Kinds = []error{
	ErrUnauthorized, ErrInvalidWindow, ErrAlreadyInitialized, ErrCampaignNotFound,
	ErrSaleNotOpen, ErrSaleClosed, ErrSupplyExhausted, ErrCurrencyMismatch,
	ErrInsufficientFunds, ErrDerivationExhausted, ErrCollaboratorFailure,
	ErrInvalidParams, ErrImmutableMetadata, ErrNotMember,
}

var kindNames = map[error]string{
	ErrUnauthorized:        "Unauthorized",
	ErrInvalidWindow:       "InvalidWindow",
	ErrAlreadyInitialized:  "AlreadyInitialized",
	ErrCampaignNotFound:    "CampaignNotFound",
	ErrSaleNotOpen:         "SaleNotOpen",
	ErrSaleClosed:          "SaleClosed",
	ErrSupplyExhausted:     "SupplyExhausted",
	ErrCurrencyMismatch:    "CurrencyMismatch",
	ErrInsufficientFunds:   "InsufficientFunds",
	ErrDerivationExhausted: "DerivationExhausted",
	ErrCollaboratorFailure: "CollaboratorFailure",
	ErrInvalidParams:       "InvalidParams",
	ErrImmutableMetadata:   "ImmutableMetadata",
	ErrNotMember:           "NotMember",
}

// KindName returns the stable name of the kind err wraps, such as
// "SupplyExhausted", or "" when err wraps none.
func KindName(err error) string {
	return kindNames[Kind(err)]
}

// collaboratorErr maps an error returned by the ledger, the issuer or the
// derivation step onto the taxonomy. Storage conflicts and context errors
// pass through untouched so the retry loop can see them.
func collaboratorErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case storage.IsConflict(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fmt.Errorf("%w: %s: %v", ErrInsufficientFunds, op, err)
	case errors.Is(err, derive.ErrDerivationExhausted):
		return fmt.Errorf("%w: %s", ErrDerivationExhausted, op)
	case errors.Is(err, certificate.ErrImmutable):
		return fmt.Errorf("%w: %s", ErrImmutableMetadata, op)
	default:
		return fmt.Errorf("%w: %s: %v", ErrCollaboratorFailure, op, err)
	}
}

// deriveErr maps a derivation failure. Over-long seeds are caller input
// errors, not exhaustion.
func deriveErr(op string, err error) error {
	switch {
	case errors.Is(err, derive.ErrSeedTooLong), errors.Is(err, derive.ErrTooManySeeds):
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, op, err)
	default:
		return collaboratorErr(op, err)
	}
}

// Kind returns the taxonomy error that err wraps, or nil.
func Kind(err error) error {
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
