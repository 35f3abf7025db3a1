// Package rpcclient provides a JSON-RPC 2.0 client for ticketd nodes.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	"github.com/Klingon-tech/ticketbox/internal/rpc"
	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      string      `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      string          `json:"id"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    *rpc.ErrorData `json:"data,omitempty"`
}

// RPCError is returned when the server responds with an error. Kind is the
// engine error kind, when the server reported one.
type RPCError struct {
	Code    int
	Message string
	Kind    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	id := uuid.NewString()
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.ID != "" && rpcResp.ID != id {
		return fmt.Errorf("response id %q does not match request %q", rpcResp.ID, id)
	}

	if rpcResp.Error != nil {
		e := &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
		if rpcResp.Error.Data != nil {
			e.Kind = rpcResp.Error.Data.Kind
		}
		return e
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// Initialize creates a campaign.
func (c *Client) Initialize(ctx context.Context, req ticket.InitializeRequest) (*ticket.Campaign, error) {
	var out ticket.Campaign
	if err := c.Call(ctx, "ticket_initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint buys one ticket.
func (c *Client) Mint(ctx context.Context, req ticket.MintRequest) (*ticket.MintReceipt, error) {
	var out ticket.MintReceipt
	if err := c.Call(ctx, "ticket_mint", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches a campaign.
func (c *Client) Update(ctx context.Context, req ticket.UpdateRequest) (*ticket.Campaign, error) {
	var out ticket.Campaign
	if err := c.Call(ctx, "ticket_update", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTicketURI rewrites one ticket's metadata URI.
func (c *Client) UpdateTicketURI(ctx context.Context, req ticket.UpdateTicketURIRequest) error {
	return c.Call(ctx, "ticket_updateTicketURI", req, nil)
}

// Campaign fetches a campaign by address.
func (c *Client) Campaign(ctx context.Context, addr types.Address) (*ticket.Campaign, error) {
	var out ticket.Campaign
	if err := c.Call(ctx, "ticket_getCampaign", rpc.CampaignParam{Address: addr.Hex()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Campaigns lists campaigns, optionally only those of creator.
func (c *Client) Campaigns(ctx context.Context, creator *types.Address) ([]*ticket.Campaign, error) {
	var p rpc.ListCampaignsParam
	if creator != nil {
		p.Creator = creator.Hex()
	}
	var out rpc.CampaignsResult
	if err := c.Call(ctx, "ticket_listCampaigns", p, &out); err != nil {
		return nil, err
	}
	return out.Campaigns, nil
}

// Certificate fetches the certificate of a collection or ticket.
func (c *Client) Certificate(ctx context.Context, id types.Address) (*certificate.Certificate, error) {
	var out certificate.Certificate
	if err := c.Call(ctx, "ticket_getCertificate", rpc.AddressParam{Address: id.Hex()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Derive asks the node for a derived address.
func (c *Client) Derive(ctx context.Context, p rpc.DeriveParam) (*rpc.DeriveResult, error) {
	var out rpc.DeriveResult
	if err := c.Call(ctx, "ticket_deriveAddress", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns owner's holding of asset.
func (c *Client) Balance(ctx context.Context, owner types.Address, asset types.AssetRef) (uint64, error) {
	p := rpc.BalanceParam{Address: owner.Hex(), Asset: ledger.NativeSymbol}
	if asset != types.NativeAsset {
		p.Asset = asset.Hex()
	}
	var out rpc.BalanceResult
	if err := c.Call(ctx, "ledger_getBalance", p, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

// Assets lists the native unit and every registered asset.
func (c *Client) Assets(ctx context.Context) ([]ledger.Asset, error) {
	var out []ledger.Asset
	if err := c.Call(ctx, "ledger_listAssets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health fetches the node's /healthz document.
func (c *Client) Health(ctx context.Context) (*rpc.HealthResult, error) {
	url := strings.TrimSuffix(c.endpoint, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("healthz: status %d", resp.StatusCode)
	}
	var out rpc.HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &out, nil
}
