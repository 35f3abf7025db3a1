// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ticketbox/config"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	klog "github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// requestTimeout bounds a single call, including conflict re-runs.
const requestTimeout = 30 * time.Second

// Backend is what the server exposes over RPC.
type Backend struct {
	Engine          *ticket.Engine
	Ledger          *ledger.Service
	MetadataProgram types.Address
}

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	engine      *ticket.Engine
	ledger      *ledger.Service
	metaProgram types.Address
	router      chi.Router
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, b Backend, rpcCfg config.RPCConfig) *Server {
	s := &Server{
		addr:        addr,
		engine:      b.Engine,
		ledger:      b.Ledger,
		metaProgram: b.MetadataProgram,
		logger:      klog.RPC,
		allowedNets: parseAllowedIPs(rpcCfg.AllowedIPs),
		corsOrigins: rpcCfg.CORSOrigins,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.ipFilter)
	r.Use(s.cors)

	r.Post("/", s.handleRequest)
	r.Options("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/healthz", s.handleHealth)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
	})
	s.router = r

	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
	}

	return s
}

// Handler returns the HTTP handler (for tests and embedding).
func (s *Server) Handler() http.Handler {
	return s.router
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// ipFilter rejects requests from addresses outside the allow-list.
func (s *Server) ipFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// cors adds CORS headers based on the configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResult{Status: "ok", Program: s.engine.ProgramID()})
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	done := klog.Timed(s.logger, req.Method)
	result, rpcErr := s.dispatch(ctx, &req)
	done()
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("RPC call failed")
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "ticket_initialize":
		return s.handleTicketInitialize(ctx, req)
	case "ticket_mint":
		return s.handleTicketMint(ctx, req)
	case "ticket_update":
		return s.handleTicketUpdate(ctx, req)
	case "ticket_updateTicketURI":
		return s.handleTicketUpdateTicketURI(ctx, req)
	case "ticket_getCampaign":
		return s.handleTicketGetCampaign(ctx, req)
	case "ticket_listCampaigns":
		return s.handleTicketListCampaigns(ctx, req)
	case "ticket_getCertificate":
		return s.handleTicketGetCertificate(ctx, req)
	case "ticket_deriveAddress":
		return s.handleTicketDeriveAddress(ctx, req)
	case "ledger_getBalance":
		return s.handleLedgerGetBalance(ctx, req)
	case "ledger_listAssets":
		return s.handleLedgerListAssets(ctx, req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseOptionalParams is parseParams for endpoints whose params may be
// omitted.
func parseOptionalParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	return parseParams(req, target)
}
