package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Ticket engine error codes. One per error kind.
const (
	CodeUnauthorized        = -32010
	CodeInvalidWindow       = -32011
	CodeAlreadyInitialized  = -32012
	CodeCampaignNotFound    = -32013
	CodeSaleNotOpen         = -32014
	CodeSaleClosed          = -32015
	CodeSupplyExhausted     = -32016
	CodeCurrencyMismatch    = -32017
	CodeInsufficientFunds   = -32018
	CodeDerivationExhausted = -32019
	CodeCollaboratorFailure = -32020
	CodeImmutableMetadata   = -32021
	CodeNotMember           = -32022
	CodeConflict            = -32023
	CodeCanceled            = -32024
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ErrorData names the engine error kind of a failed call.
type ErrorData struct {
	Kind string `json:"kind"`
}

// ── Param types ─────────────────────────────────────────────────────────

// The mutating ticket_* methods take the engine request types directly:
// ticket.InitializeRequest, ticket.MintRequest, ticket.UpdateRequest and
// ticket.UpdateTicketURIRequest.

// CampaignParam selects a campaign by address, or by (campaignId, creator).
type CampaignParam struct {
	Address    string `json:"address,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
	Creator    string `json:"creator,omitempty"`
}

// ListCampaignsParam optionally filters ticket_listCampaigns by creator.
type ListCampaignsParam struct {
	Creator string `json:"creator,omitempty"`
}

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// BalanceParam is used by ledger_getBalance. An empty Asset returns every
// holding of Address.
type BalanceParam struct {
	Address string `json:"address"`
	Asset   string `json:"asset,omitempty"`
}

// Derivation kinds accepted by ticket_deriveAddress.
const (
	DeriveCampaign   = "campaign"
	DeriveCollection = "collection"
	DeriveTicket     = "ticket"
	DeriveMetadata   = "metadata"
	DeriveEdition    = "edition"
)

// DeriveParam is used by ticket_deriveAddress.
//
//	campaign:   campaignId + creator
//	collection: campaign
//	ticket:     campaign + sequence
//	metadata:   asset
//	edition:    asset
type DeriveParam struct {
	Kind       string `json:"kind"`
	CampaignID string `json:"campaignId,omitempty"`
	Creator    string `json:"creator,omitempty"`
	Campaign   string `json:"campaign,omitempty"`
	Sequence   uint64 `json:"sequence,omitempty"`
	Asset      string `json:"asset,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// CampaignsResult is returned by ticket_listCampaigns.
type CampaignsResult struct {
	Campaigns []*ticket.Campaign `json:"campaigns"`
}

// TicketURIResult is returned by ticket_updateTicketURI.
type TicketURIResult struct {
	Ticket types.Address `json:"ticket"`
	URI    string        `json:"uri"`
}

// DeriveResult is returned by ticket_deriveAddress.
type DeriveResult struct {
	Address types.Address `json:"address"`
	Bump    uint8         `json:"bump"`
	Owner   types.Address `json:"owner"`
}

// BalanceResult is returned by ledger_getBalance for a single asset.
type BalanceResult struct {
	Address types.Address  `json:"address"`
	Asset   types.AssetRef `json:"asset"`
	Amount  uint64         `json:"amount"`
}

// HoldingsResult is returned by ledger_getBalance without an asset.
type HoldingsResult struct {
	Address  types.Address   `json:"address"`
	Holdings []HoldingResult `json:"holdings"`
}

// HoldingResult is one entry of HoldingsResult.
type HoldingResult struct {
	Asset  types.AssetRef `json:"asset"`
	Symbol string         `json:"symbol,omitempty"`
	Amount uint64         `json:"amount"`
}

// HealthResult is the /healthz body.
type HealthResult struct {
	Status  string        `json:"status"`
	Program types.Address `json:"program"`
}
