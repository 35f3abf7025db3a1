package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/ticketbox/config"
	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	klog "github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/crypto"
	"github.com/Klingon-tech/ticketbox/pkg/derive"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

var (
	testProgram  = types.Address{0x70, 0x72, 0x6f, 0x67}
	testMetadata = types.Address{0x6d, 0x65, 0x74, 0x61}
	usdc         = types.AssetRef{0x05, 0xdc}
	now          = time.Unix(1_700_000_000, 0)
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// testEnv holds all components for an RPC test.
type testEnv struct {
	server  *Server
	engine  *ticket.Engine
	ledger  *ledger.Ledger
	db      storage.Store
	creator *crypto.PrivateKey
	buyer   *crypto.PrivateKey
	url     string
	nonce   uint64
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithConfig(t, config.RPCConfig{})
}

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig) *testEnv {
	t.Helper()
	klog.SetOutput(io.Discard, "error")

	db := storage.NewMemory()
	l := ledger.New()
	is := certificate.NewIssuer(testMetadata)
	nop := zerolog.New(io.Discard)
	eng, err := ticket.New(ticket.Config{ProgramID: testProgram, Clock: fixedClock{now}, Logger: &nop}, db, l, is)
	require.NoError(t, err)

	creator, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer, err := crypto.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, db.Update(context.Background(), func(txn storage.Txn) error {
		if err := l.RegisterAsset(txn, ledger.Asset{ID: usdc, Symbol: "USDC", Decimals: 6}); err != nil {
			return err
		}
		if err := l.Credit(txn, usdc, buyer.Address(), 150); err != nil {
			return err
		}
		return l.Credit(txn, types.NativeAsset, buyer.Address(), 1_000)
	}))

	srv := New("127.0.0.1:0", Backend{
		Engine:          eng,
		Ledger:          ledger.NewService(db, l),
		MetadataProgram: testMetadata,
	}, rpcCfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:  srv,
		engine:  eng,
		ledger:  l,
		db:      db,
		creator: creator,
		buyer:   buyer,
		url:     ts.URL + "/",
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err, "post %s", method)
	defer resp.Body.Close()

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return rpcResp
}

func decodeResult(t *testing.T, resp Response, v interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func (e *testEnv) signed(t *testing.T, k *crypto.PrivateKey, hash func() (types.Hash, error)) *ticket.Authorization {
	t.Helper()
	d, err := hash()
	require.NoError(t, err)
	a, err := ticket.Authorize(k, d)
	require.NoError(t, err)
	return a
}

func (e *testEnv) initRequest(t *testing.T, id string, price uint64, cur ticket.Currency) ticket.InitializeRequest {
	t.Helper()
	e.nonce++
	req := ticket.InitializeRequest{
		Params: ticket.InitializeParams{
			CampaignID:      id,
			DisplayName:     "Flip Girl",
			CollectionURI:   "https://tickets.example/flip-girl.json",
			SaleStart:       now.Add(-time.Minute).Unix(),
			SaleEnd:         now.Add(10 * time.Minute).Unix(),
			MaxSupply:       3,
			MaxPerMint:      1,
			Price:           price,
			MutableMetadata: true,
		},
		Creator:  e.creator.Address(),
		Currency: cur,
		Nonce:    e.nonce,
	}
	req.CreatorAuth = e.signed(t, e.creator, func() (types.Hash, error) { return req.SigningHash(testProgram) })
	return req
}

func (e *testEnv) mintRequest(t *testing.T, campaign types.Address, presented *types.AssetRef) ticket.MintRequest {
	t.Helper()
	e.nonce++
	req := ticket.MintRequest{
		Campaign:  campaign,
		Buyer:     e.buyer.Address(),
		TicketURI: "https://tickets.example/t.json",
		Currency:  presented,
		Nonce:     e.nonce,
	}
	req.Auth = e.signed(t, e.buyer, func() (types.Hash, error) { return req.SigningHash(testProgram) })
	return req
}

func (e *testEnv) initialize(t *testing.T, id string, price uint64, cur ticket.Currency) *ticket.Campaign {
	t.Helper()
	var c ticket.Campaign
	decodeResult(t, rpcCall(t, e.url, "ticket_initialize", e.initRequest(t, id, price, cur)), &c)
	return &c
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_InitializeAndGetCampaign(t *testing.T) {
	env := setupTestEnv(t)
	c := env.initialize(t, "gig", 50, ticket.Fungible(usdc))

	assert.Equal(t, "gig", c.CampaignID)
	assert.Equal(t, env.creator.Address(), c.Creator)
	assert.Equal(t, uint64(0), c.MintedCount)
	assert.Equal(t, ticket.Fungible(usdc), c.Currency)

	var byAddr ticket.Campaign
	decodeResult(t, rpcCall(t, env.url, "ticket_getCampaign", CampaignParam{Address: c.Address.String()}), &byAddr)
	assert.Equal(t, *c, byAddr)

	var byID ticket.Campaign
	decodeResult(t, rpcCall(t, env.url, "ticket_getCampaign", CampaignParam{
		CampaignID: "gig",
		Creator:    env.creator.Address().Hex(),
	}), &byID)
	assert.Equal(t, c.Address, byID.Address)
}

func TestRPC_GetCampaign_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "ticket_getCampaign", CampaignParam{Address: types.Address{0x01}.Hex()})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCampaignNotFound, resp.Error.Code)
}

func TestRPC_GetCampaign_MissingSelector(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "ticket_getCampaign", CampaignParam{CampaignID: "gig"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestRPC_Initialize_AlreadyInitialized(t *testing.T) {
	env := setupTestEnv(t)
	env.initialize(t, "gig", 0, ticket.Native())

	resp := rpcCall(t, env.url, "ticket_initialize", env.initRequest(t, "gig", 0, ticket.Native()))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAlreadyInitialized, resp.Error.Code)

	data, err := json.Marshal(resp.Error.Data)
	require.NoError(t, err)
	var ed ErrorData
	require.NoError(t, json.Unmarshal(data, &ed))
	assert.Equal(t, "AlreadyInitialized", ed.Kind)
}

func TestRPC_Initialize_Unauthorized(t *testing.T) {
	env := setupTestEnv(t)
	req := env.initRequest(t, "gig", 0, ticket.Native())
	req.Params.MaxSupply = 99 // Signature no longer covers the body.

	resp := rpcCall(t, env.url, "ticket_initialize", req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
}

func TestRPC_MintFlow(t *testing.T) {
	env := setupTestEnv(t)
	c := env.initialize(t, "gig", 50, ticket.Fungible(usdc))

	var receipt ticket.MintReceipt
	decodeResult(t, rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, &usdc)), &receipt)
	assert.Equal(t, uint64(1), receipt.Sequence)
	assert.Equal(t, uint64(1), receipt.MintedCount)
	assert.Equal(t, uint64(50), receipt.Paid)

	wantTicket, _, err := derive.TicketAsset(testProgram, c.Address, 1)
	require.NoError(t, err)
	assert.Equal(t, wantTicket, receipt.Ticket)

	// Certificate of the new ticket.
	var cert certificate.Certificate
	decodeResult(t, rpcCall(t, env.url, "ticket_getCertificate", AddressParam{Address: receipt.Ticket.String()}), &cert)
	assert.Equal(t, env.buyer.Address(), cert.Asset.Owner)
	require.NotNil(t, cert.Metadata)
	assert.Equal(t, "Flip Girl #1", cert.Metadata.Name)
	require.NotNil(t, cert.Metadata.Collection)
	assert.True(t, cert.Metadata.Collection.Verified)

	// Buyer paid; creator wallet received.
	var bal BalanceResult
	decodeResult(t, rpcCall(t, env.url, "ledger_getBalance", BalanceParam{
		Address: env.buyer.Address().String(),
		Asset:   usdc.Hex(),
	}), &bal)
	assert.Equal(t, uint64(100), bal.Amount)

	decodeResult(t, rpcCall(t, env.url, "ledger_getBalance", BalanceParam{
		Address: env.creator.Address().String(),
		Asset:   usdc.Hex(),
	}), &bal)
	assert.Equal(t, uint64(50), bal.Amount)
}

func TestRPC_Mint_ErrorCodes(t *testing.T) {
	env := setupTestEnv(t)
	c := env.initialize(t, "gig", 100, ticket.Fungible(usdc))

	// Wrong currency presented.
	resp := rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, assetRef(types.NativeAsset)))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCurrencyMismatch, resp.Error.Code)

	// 150 USDC covers one ticket at 100, not two.
	resp = rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, &usdc))
	require.Nil(t, resp.Error)
	resp = rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, &usdc))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInsufficientFunds, resp.Error.Code)

	// Replayed request.
	req := env.mintRequest(t, c.Address, &usdc)
	require.NoError(t, env.db.Update(context.Background(), func(txn storage.Txn) error {
		return env.ledger.Credit(txn, usdc, env.buyer.Address(), 1_000)
	}))
	resp = rpcCall(t, env.url, "ticket_mint", req)
	require.Nil(t, resp.Error)
	resp = rpcCall(t, env.url, "ticket_mint", req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)

	resp = rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, &usdc))
	require.Nil(t, resp.Error)

	// Supply of three is now used up.
	resp = rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, &usdc))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSupplyExhausted, resp.Error.Code)
}

func TestRPC_UpdateAndTicketURI(t *testing.T) {
	env := setupTestEnv(t)
	c := env.initialize(t, "gig", 0, ticket.Native())

	name := "Flip Girl (Encore)"
	env.nonce++
	up := ticket.UpdateRequest{Campaign: c.Address, Patch: ticket.UpdateParams{DisplayName: &name}, Nonce: env.nonce}
	up.Auth = env.signed(t, env.creator, func() (types.Hash, error) { return up.SigningHash(testProgram) })

	var updated ticket.Campaign
	decodeResult(t, rpcCall(t, env.url, "ticket_update", up), &updated)
	assert.Equal(t, name, updated.DisplayName)
	assert.Equal(t, c.Version+1, updated.Version)

	var receipt ticket.MintReceipt
	decodeResult(t, rpcCall(t, env.url, "ticket_mint", env.mintRequest(t, c.Address, nil)), &receipt)

	env.nonce++
	tu := ticket.UpdateTicketURIRequest{Campaign: c.Address, Ticket: receipt.Ticket, URI: "https://tickets.example/new.json", Nonce: env.nonce}
	tu.Auth = env.signed(t, env.creator, func() (types.Hash, error) { return tu.SigningHash(testProgram) })

	var res TicketURIResult
	decodeResult(t, rpcCall(t, env.url, "ticket_updateTicketURI", tu), &res)
	assert.Equal(t, receipt.Ticket, res.Ticket)

	var cert certificate.Certificate
	decodeResult(t, rpcCall(t, env.url, "ticket_getCertificate", AddressParam{Address: receipt.Ticket.Hex()}), &cert)
	require.NotNil(t, cert.Metadata)
	assert.Equal(t, "https://tickets.example/new.json", cert.Metadata.URI)
}

func TestRPC_ListCampaigns(t *testing.T) {
	env := setupTestEnv(t)

	var empty CampaignsResult
	decodeResult(t, rpcCall(t, env.url, "ticket_listCampaigns", nil), &empty)
	assert.Empty(t, empty.Campaigns)

	env.initialize(t, "a", 0, ticket.Native())
	env.initialize(t, "b", 0, ticket.Native())

	var all CampaignsResult
	decodeResult(t, rpcCall(t, env.url, "ticket_listCampaigns", nil), &all)
	assert.Len(t, all.Campaigns, 2)

	var mine CampaignsResult
	decodeResult(t, rpcCall(t, env.url, "ticket_listCampaigns", ListCampaignsParam{Creator: env.creator.Address().String()}), &mine)
	assert.Len(t, mine.Campaigns, 2)

	var other CampaignsResult
	decodeResult(t, rpcCall(t, env.url, "ticket_listCampaigns", ListCampaignsParam{Creator: env.buyer.Address().String()}), &other)
	assert.Empty(t, other.Campaigns)
}

func TestRPC_DeriveAddress(t *testing.T) {
	env := setupTestEnv(t)
	creator := env.creator.Address()
	campaign, cbump, err := derive.CampaignAddress(testProgram, "gig", creator)
	require.NoError(t, err)
	collection, _, err := derive.CollectionAsset(testProgram, campaign)
	require.NoError(t, err)
	tkt, _, err := derive.TicketAsset(testProgram, campaign, 3)
	require.NoError(t, err)
	md, _, err := derive.MetadataAddress(testMetadata, tkt)
	require.NoError(t, err)
	ed, _, err := derive.EditionAddress(testMetadata, tkt)
	require.NoError(t, err)

	tests := []struct {
		name  string
		param DeriveParam
		want  types.Address
		owner types.Address
	}{
		{"campaign", DeriveParam{Kind: DeriveCampaign, CampaignID: "gig", Creator: creator.String()}, campaign, testProgram},
		{"collection", DeriveParam{Kind: DeriveCollection, Campaign: campaign.Hex()}, collection, testProgram},
		{"ticket", DeriveParam{Kind: DeriveTicket, Campaign: campaign.Hex(), Sequence: 3}, tkt, testProgram},
		{"metadata", DeriveParam{Kind: DeriveMetadata, Asset: tkt.Hex()}, md, testMetadata},
		{"edition", DeriveParam{Kind: DeriveEdition, Asset: tkt.Hex()}, ed, testMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res DeriveResult
			decodeResult(t, rpcCall(t, env.url, "ticket_deriveAddress", tt.param), &res)
			assert.Equal(t, tt.want, res.Address)
			assert.Equal(t, tt.owner, res.Owner)
		})
	}

	var res DeriveResult
	decodeResult(t, rpcCall(t, env.url, "ticket_deriveAddress", tests[0].param), &res)
	assert.Equal(t, cbump, res.Bump)
}

func TestRPC_DeriveAddress_Invalid(t *testing.T) {
	env := setupTestEnv(t)
	tests := []DeriveParam{
		{Kind: "wallet"},
		{Kind: DeriveCampaign, Creator: env.creator.Address().Hex()},
		{Kind: DeriveCampaign, CampaignID: "this-campaign-id-is-longer-than-thirty-two-bytes", Creator: env.creator.Address().Hex()},
		{Kind: DeriveTicket, Campaign: types.Address{1}.Hex()},
		{Kind: DeriveMetadata, Asset: "nope"},
	}
	for _, p := range tests {
		resp := rpcCall(t, env.url, "ticket_deriveAddress", p)
		require.NotNil(t, resp.Error, "%+v", p)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code, "%+v", p)
	}
}

func TestRPC_LedgerListAssetsAndHoldings(t *testing.T) {
	env := setupTestEnv(t)

	var assets []ledger.Asset
	decodeResult(t, rpcCall(t, env.url, "ledger_listAssets", nil), &assets)
	require.Len(t, assets, 2)
	assert.Equal(t, ledger.NativeSymbol, assets[0].Symbol)
	assert.Equal(t, "USDC", assets[1].Symbol)

	var holdings HoldingsResult
	decodeResult(t, rpcCall(t, env.url, "ledger_getBalance", BalanceParam{Address: env.buyer.Address().String()}), &holdings)
	require.Len(t, holdings.Holdings, 2)
	assert.Equal(t, HoldingResult{Asset: types.NativeAsset, Symbol: ledger.NativeSymbol, Amount: 1_000}, holdings.Holdings[0])
	assert.Equal(t, HoldingResult{Asset: usdc, Symbol: "USDC", Amount: 150}, holdings.Holdings[1])

	var bal BalanceResult
	decodeResult(t, rpcCall(t, env.url, "ledger_getBalance", BalanceParam{Address: env.buyer.Address().String(), Asset: "TBX"}), &bal)
	assert.Equal(t, uint64(1_000), bal.Amount)
}

func TestRPC_LedgerGetBalance_UnknownAsset(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "ledger_getBalance", BalanceParam{
		Address: env.buyer.Address().String(),
		Asset:   types.Address{0xaa}.Hex(),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestRPC_GetCertificate_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "ticket_getCertificate", AddressParam{Address: types.Address{0x42}.Hex()})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "ticket_mint", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpcCall(t, env.url, "ticket_mint", map[string]interface{}{"campaign": 12})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeParseError, rpcResp.Error.Code)
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte(`{"jsonrpc":"1.0","method":"ledger_listAssets","id":7}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeInvalidRequest, rpcResp.Error.Code)
	assert.EqualValues(t, 7, rpcResp.ID)
}

func TestRPC_BodyTooLarge(t *testing.T) {
	env := setupTestEnv(t)
	big := bytes.Repeat([]byte("a"), maxBodySize+10)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeInvalidRequest, rpcResp.Error.Code)
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeInvalidRequest, rpcResp.Error.Code)
}

func TestRPC_Healthz(t *testing.T) {
	env := setupTestEnv(t)
	resp, err := http.Get(env.url + "healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h HealthResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, testProgram, h.Program)
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})
	resp := rpcCall(t, env.url, "ledger_listAssets", nil)
	assert.Nil(t, resp.Error)
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "ledger_listAssets", ID: 1})
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"127.0.0.1", "10.0.0.0/8", "::1", "garbage"})
	require.Len(t, nets, 3)
	assert.Equal(t, "127.0.0.1/32", nets[0].String())
	assert.Equal(t, "10.0.0.0/8", nets[1].String())
	assert.Equal(t, "::1/128", nets[2].String())
}

// --- CORS ---

func corsRequest(t *testing.T, method, url, origin string) *http.Response {
	t.Helper()
	var body io.Reader
	if method == http.MethodPost {
		data, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "ledger_listAssets", ID: 1})
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", origin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRPC_CORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://example.com", "*"},
		{"specific match", []string{"http://myapp.com"}, "http://myapp.com", "http://myapp.com"},
		{"specific mismatch", []string{"http://myapp.com"}, "http://evil.com", ""},
		{"disabled", nil, "http://example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvWithConfig(t, config.RPCConfig{CORSOrigins: tt.origins})
			resp := corsRequest(t, http.MethodPost, env.url, tt.origin)
			assert.Equal(t, tt.want, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{CORSOrigins: []string{"*"}})
	resp := corsRequest(t, http.MethodOptions, env.url, "http://example.com")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}

// --- Lifecycle ---

func TestServer_StartStop(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, env.server.Start())
	url := fmt.Sprintf("http://%s/", env.server.Addr())

	resp := rpcCall(t, url, "ledger_listAssets", nil)
	assert.Nil(t, resp.Error)
	require.NoError(t, env.server.Stop())
}

func TestEngineError_Mapping(t *testing.T) {
	for kind, code := range kindCodes {
		e := engineError(fmt.Errorf("op: %w", kind))
		assert.Equal(t, code, e.Code, kind.Error())
		data, ok := e.Data.(ErrorData)
		require.True(t, ok, kind.Error())
		assert.Equal(t, ticket.KindName(kind), data.Kind)
		assert.NotContains(t, data.Kind, " ")
	}
	mint := engineError(fmt.Errorf("mint: %w", ticket.ErrSupplyExhausted))
	assert.Equal(t, ErrorData{Kind: "SupplyExhausted"}, mint.Data)
	assert.Equal(t, CodeConflict, engineError(storage.ErrConflict).Code)
	assert.Equal(t, CodeCanceled, engineError(context.Canceled).Code)
	assert.Equal(t, CodeNotFound, engineError(ledger.ErrUnknownAsset).Code)
	assert.Equal(t, CodeInternalError, engineError(fmt.Errorf("boom")).Code)
	assert.Len(t, kindCodes, len(ticket.Kinds))
}

func assetRef(a types.AssetRef) *types.AssetRef { return &a }
