package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// ── Ticket endpoints ────────────────────────────────────────────────────

func (s *Server) handleTicketInitialize(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ticket.InitializeRequest
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	c, err := s.engine.Initialize(ctx, params)
	if err != nil {
		return nil, engineError(err)
	}
	return c, nil
}

func (s *Server) handleTicketMint(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ticket.MintRequest
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	receipt, err := s.engine.Mint(ctx, params)
	if err != nil {
		return nil, engineError(err)
	}
	return receipt, nil
}

func (s *Server) handleTicketUpdate(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ticket.UpdateRequest
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	c, err := s.engine.Update(ctx, params)
	if err != nil {
		return nil, engineError(err)
	}
	return c, nil
}

func (s *Server) handleTicketUpdateTicketURI(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ticket.UpdateTicketURIRequest
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.engine.UpdateTicketURI(ctx, params); err != nil {
		return nil, engineError(err)
	}
	return &TicketURIResult{Ticket: params.Ticket, URI: params.URI}, nil
}

func (s *Server) handleTicketGetCampaign(ctx context.Context, req *Request) (interface{}, *Error) {
	var params CampaignParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	var (
		c   *ticket.Campaign
		err error
	)
	switch {
	case params.Address != "":
		addr, rpcErr := parseAddress("address", params.Address)
		if rpcErr != nil {
			return nil, rpcErr
		}
		c, err = s.engine.Campaign(ctx, addr)
	case params.CampaignID != "" && params.Creator != "":
		creator, rpcErr := parseAddress("creator", params.Creator)
		if rpcErr != nil {
			return nil, rpcErr
		}
		c, err = s.engine.CampaignByID(ctx, params.CampaignID, creator)
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: "address or campaignId+creator is required"}
	}
	if err != nil {
		return nil, engineError(err)
	}
	return c, nil
}

func (s *Server) handleTicketListCampaigns(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ListCampaignsParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}

	var (
		list []*ticket.Campaign
		err  error
	)
	if params.Creator != "" {
		creator, rpcErr := parseAddress("creator", params.Creator)
		if rpcErr != nil {
			return nil, rpcErr
		}
		list, err = s.engine.CampaignsByCreator(ctx, creator)
	} else {
		list, err = s.engine.Campaigns(ctx)
	}
	if err != nil {
		return nil, engineError(err)
	}
	if list == nil {
		list = []*ticket.Campaign{}
	}
	return &CampaignsResult{Campaigns: list}, nil
}

func (s *Server) handleTicketGetCertificate(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	cert, err := s.engine.Certificate(ctx, addr)
	if err != nil {
		return nil, engineError(err)
	}
	return cert, nil
}

func (s *Server) handleTicketDeriveAddress(_ context.Context, req *Request) (interface{}, *Error) {
	var params DeriveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	program := s.engine.ProgramID()
	var (
		addr  types.Address
		bump  uint8
		owner = program
		err   error
	)
	switch params.Kind {
	case DeriveCampaign:
		if params.CampaignID == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "campaignId is required"}
		}
		creator, rpcErr := parseAddress("creator", params.Creator)
		if rpcErr != nil {
			return nil, rpcErr
		}
		addr, bump, err = derive.CampaignAddress(program, params.CampaignID, creator)
	case DeriveCollection:
		campaign, rpcErr := parseAddress("campaign", params.Campaign)
		if rpcErr != nil {
			return nil, rpcErr
		}
		addr, bump, err = derive.CollectionAsset(program, campaign)
	case DeriveTicket:
		campaign, rpcErr := parseAddress("campaign", params.Campaign)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if params.Sequence == 0 {
			return nil, &Error{Code: CodeInvalidParams, Message: "sequence starts at 1"}
		}
		addr, bump, err = derive.TicketAsset(program, campaign, params.Sequence)
	case DeriveMetadata, DeriveEdition:
		asset, rpcErr := parseAddress("asset", params.Asset)
		if rpcErr != nil {
			return nil, rpcErr
		}
		owner = s.metaProgram
		if params.Kind == DeriveMetadata {
			addr, bump, err = derive.MetadataAddress(owner, asset)
		} else {
			addr, bump, err = derive.EditionAddress(owner, asset)
		}
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown kind %q", params.Kind)}
	}
	if err != nil {
		if errors.Is(err, derive.ErrSeedTooLong) || errors.Is(err, derive.ErrTooManySeeds) {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, &Error{Code: CodeDerivationExhausted, Message: err.Error()}
	}
	return &DeriveResult{Address: addr, Bump: bump, Owner: owner}, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetBalance(ctx context.Context, req *Request) (interface{}, *Error) {
	var params BalanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if params.Asset == "" {
		return s.holdings(ctx, owner)
	}

	asset := types.NativeAsset
	if params.Asset != ledger.NativeSymbol {
		asset, rpcErr = parseAddress("asset", params.Asset)
		if rpcErr != nil {
			return nil, rpcErr
		}
	}
	bal, err := s.ledger.Balance(ctx, asset, owner)
	if err != nil {
		return nil, engineError(err)
	}
	return &BalanceResult{Address: owner, Asset: asset, Amount: bal}, nil
}

func (s *Server) holdings(ctx context.Context, owner types.Address) (interface{}, *Error) {
	assets, err := s.ledger.Assets(ctx)
	if err != nil {
		return nil, engineError(err)
	}
	symbols := make(map[types.AssetRef]string, len(assets))
	for _, a := range assets {
		symbols[a.ID] = a.Symbol
	}

	hs, err := s.ledger.Holdings(ctx, owner)
	if err != nil {
		return nil, engineError(err)
	}
	out := &HoldingsResult{Address: owner, Holdings: make([]HoldingResult, 0, len(hs))}
	for _, h := range hs {
		out.Holdings = append(out.Holdings, HoldingResult{Asset: h.Asset, Symbol: symbols[h.Asset], Amount: h.Amount})
	}
	return out, nil
}

func (s *Server) handleLedgerListAssets(ctx context.Context, _ *Request) (interface{}, *Error) {
	assets, err := s.ledger.Assets(ctx)
	if err != nil {
		return nil, engineError(err)
	}
	return assets, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

func parseAddress(field, s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	a, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return a, nil
}

var kindCodes = map[error]int{
	ticket.ErrUnauthorized:        CodeUnauthorized,
	ticket.ErrInvalidWindow:       CodeInvalidWindow,
	ticket.ErrAlreadyInitialized:  CodeAlreadyInitialized,
	ticket.ErrCampaignNotFound:    CodeCampaignNotFound,
	ticket.ErrSaleNotOpen:         CodeSaleNotOpen,
	ticket.ErrSaleClosed:          CodeSaleClosed,
	ticket.ErrSupplyExhausted:     CodeSupplyExhausted,
	ticket.ErrCurrencyMismatch:    CodeCurrencyMismatch,
	ticket.ErrInsufficientFunds:   CodeInsufficientFunds,
	ticket.ErrDerivationExhausted: CodeDerivationExhausted,
	ticket.ErrCollaboratorFailure: CodeCollaboratorFailure,
	ticket.ErrInvalidParams:       CodeInvalidParams,
	ticket.ErrImmutableMetadata:   CodeImmutableMetadata,
	ticket.ErrNotMember:           CodeNotMember,
}

// engineError maps an engine or ledger error onto a JSON-RPC error.
func engineError(err error) *Error {
	if kind := ticket.Kind(err); kind != nil {
		return &Error{Code: kindCodes[kind], Message: err.Error(), Data: ErrorData{Kind: ticket.KindName(kind)}}
	}
	switch {
	case storage.IsConflict(err):
		return &Error{Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeCanceled, Message: err.Error()}
	case errors.Is(err, ledger.ErrUnknownAsset),
		errors.Is(err, certificate.ErrAssetNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}
