// Package ticket implements the ticket sale engine: campaign creation,
// capped and time-windowed ticket issuance, and the currency gate.
//
// Every operation runs as one storage transaction. Records are addressed by
// deterministic derivation, and the store's compare-and-commit is the only
// concurrency control: when a commit loses a race the whole operation is
// re-run against fresh state, so preconditions such as the supply cap are
// always judged on committed data.
package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Ledger is the fungible-asset service the engine pays through.
type Ledger interface {
	AssetExists(txn storage.Txn, asset types.AssetRef) (bool, error)
	Balance(txn storage.Txn, asset types.AssetRef, owner types.Address) (uint64, error)
	Transfer(txn storage.Txn, asset types.AssetRef, from, to types.Address, amount uint64) error
}

// Issuer is the non-fungible issuance and metadata service.
type Issuer interface {
	MintAsset(txn storage.Txn, id, owner types.Address) error
	AttachMetadata(txn storage.Txn, md *certificate.Metadata) (types.Address, error)
	CreateEdition(txn storage.Txn, asset types.Address, maxSupply uint64) (types.Address, error)
	VerifyCollectionMember(txn storage.Txn, item, collection, authority types.Address) error
	IsVerifiedMember(txn storage.Txn, item, collection types.Address) (bool, error)
	UpdateMetadata(txn storage.Txn, asset, authority types.Address, patch certificate.MetadataPatch) error
	Certificate(txn storage.Txn, id types.Address) (*certificate.Certificate, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Config configures an Engine.
type Config struct {
	// ProgramID owns every derived campaign, collection and ticket address.
	ProgramID types.Address
	// Clock defaults to SystemClock.
	Clock Clock
	// Logger defaults to the engine component logger.
	Logger *zerolog.Logger
	// MaxAttempts bounds re-runs after a conflict. Zero means retry until
	// the context is done.
	MaxAttempts int
}

// Engine runs ticket operations against a transactional store.
type Engine struct {
	db          storage.Transactional
	ledger      Ledger
	issuer      Issuer
	program     types.Address
	clock       Clock
	log         zerolog.Logger
	maxAttempts int
}

// ErrNoProgramID is returned by New when cfg.ProgramID is zero.
var ErrNoProgramID = errors.New("engine program id not set")

// New creates an engine.
func New(cfg Config, db storage.Transactional, l Ledger, is Issuer) (*Engine, error) {
	if cfg.ProgramID.IsZero() {
		return nil, ErrNoProgramID
	}
	e := &Engine{
		db:          db,
		ledger:      l,
		issuer:      is,
		program:     cfg.ProgramID,
		clock:       cfg.Clock,
		log:         log.Engine,
		maxAttempts: cfg.MaxAttempts,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	return e, nil
}

// ProgramID returns the engine's program ID.
func (e *Engine) ProgramID() types.Address {
	return e.program
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

// update runs fn in a transaction, re-running it from scratch whenever the
// commit reports a conflict. Any other error is terminal.
func (e *Engine) update(ctx context.Context, op string, fn func(txn storage.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.db.Update(ctx, fn)
		if !storage.IsConflict(err) {
			return err
		}
		if e.maxAttempts > 0 && attempt >= e.maxAttempts {
			e.log.Warn().Str("op", op).Int("attempts", attempt).Msg("Giving up after conflicts")
			return err
		}
		e.log.Debug().Str("op", op).Int("attempt", attempt).Msg("Commit conflict, retrying")
	}
}

func (e *Engine) view(ctx context.Context, fn func(txn storage.Txn) error) error {
	return e.db.View(ctx, fn)
}

// CampaignAddress derives the record address of (campaignID, creator).
func (e *Engine) CampaignAddress(campaignID string, creator types.Address) (types.Address, error) {
	addr, _, err := derive.CampaignAddress(e.program, campaignID, creator)
	if err != nil {
		return types.Address{}, deriveErr("campaign address", err)
	}
	return addr, nil
}

// Campaign returns the record at addr.
func (e *Engine) Campaign(ctx context.Context, addr types.Address) (*Campaign, error) {
	var c *Campaign
	err := e.view(ctx, func(txn storage.Txn) error {
		var err error
		c, err = newRecords(txn).load(addr)
		return err
	})
	return c, err
}

// CampaignByID returns the campaign created by creator under campaignID.
func (e *Engine) CampaignByID(ctx context.Context, campaignID string, creator types.Address) (*Campaign, error) {
	addr, err := e.CampaignAddress(campaignID, creator)
	if err != nil {
		return nil, err
	}
	return e.Campaign(ctx, addr)
}

// CampaignsByCreator lists every campaign of creator.
func (e *Engine) CampaignsByCreator(ctx context.Context, creator types.Address) ([]*Campaign, error) {
	var out []*Campaign
	err := e.view(ctx, func(txn storage.Txn) error {
		var err error
		out, err = newRecords(txn).byCreator(creator)
		return err
	})
	return out, err
}

// Campaigns lists every campaign.
func (e *Engine) Campaigns(ctx context.Context) ([]*Campaign, error) {
	var out []*Campaign
	err := e.view(ctx, func(txn storage.Txn) error {
		var err error
		out, err = newRecords(txn).all()
		return err
	})
	return out, err
}

// Certificate returns the certificate records of a collection or ticket.
func (e *Engine) Certificate(ctx context.Context, id types.Address) (*certificate.Certificate, error) {
	var c *certificate.Certificate
	err := e.view(ctx, func(txn storage.Txn) error {
		var err error
		c, err = e.issuer.Certificate(txn, id)
		return err
	})
	return c, err
}

// Balance returns owner's holding of asset.
func (e *Engine) Balance(ctx context.Context, asset types.AssetRef, owner types.Address) (uint64, error) {
	var bal uint64
	err := e.view(ctx, func(txn storage.Txn) error {
		var err error
		bal, err = e.ledger.Balance(txn, asset, owner)
		return err
	})
	return bal, err
}
