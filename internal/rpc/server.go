// Package rpc implements the wallet's JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	klog "github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// CallerHeader optionally names the caller. It must agree with the bearer
// token; without a token only wallet.Anonymous may be named.
const CallerHeader = "X-Wallet-Caller"

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	wallet      *wallet.Service
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
	credentials []credential
}

// New creates a new RPC server in front of svc. The rpcCfg parameter
// controls IP filtering, CORS and caller tokens. A zero-value RPCConfig
// allows all IPs, disables CORS and serves every request as anonymous.
func New(addr string, svc *wallet.Service, rpcCfg config.RPCConfig) *Server {
	s := &Server{
		addr:        addr,
		wallet:      svc,
		logger:      klog.WithComponent("rpc"),
		allowedNets: parseAllowedIPs(rpcCfg.AllowedIPs),
		corsOrigins: rpcCfg.CORSOrigins,
		credentials: newCredentials(rpcCfg.Tokens),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Transfers wait on several upstream round trips.
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

// Handler returns the HTTP handler serving JSON-RPC requests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
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

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
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

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

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

	caller, authErr := s.authenticate(r)
	if authErr != nil {
		s.logger.Warn().Str("method", req.Method).Str("remote", r.RemoteAddr).Msg(authErr.Message)
		writeJSON(w, Response{JSONRPC: "2.0", Error: authErr, ID: req.ID})
		return
	}

	c := &call{ctx: r.Context(), req: &req, caller: caller}
	result, rpcErr := s.dispatch(c)
	if rpcErr != nil {
		s.logger.Debug().
			Str("method", req.Method).
			Str("caller", c.caller).
			Int("code", rpcErr.Code).
			Msg("RPC request failed")
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

// call is one dispatched request.
type call struct {
	ctx    context.Context
	req    *Request
	caller string
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(c *call) (any, *Error) {
	switch c.req.Method {
	case "service_info":
		return s.wallet.Info(c.caller), nil
	case "wallet_networks":
		return s.wallet.Networks(), nil
	case "supported_networks":
		return s.wallet.SupportedNetworks(), nil
	case "wallet_requestAddress":
		return s.handleRequestAddress(c)
	case "wallet_getBalance":
		return s.handleGetBalance(c)
	case "wallet_transfer":
		return s.handleTransfer(c)
	case "token_list":
		return s.handleTokenList(c)
	case "token_add":
		return s.handleTokenAdd(c)
	case "token_remove":
		return s.handleTokenRemove(c)
	case "rpc_list":
		return s.wallet.ListRPCs(), nil
	case "rpc_set":
		return s.handleRPCSet(c)
	case "rpc_remove":
		return s.handleRPCRemove(c)
	case "explorer_get":
		return s.handleExplorerGet(c)
	case "admin_pause":
		return s.handlePause(c, true)
	case "admin_unpause":
		return s.handlePause(c, false)
	case "admin_rotateOwner":
		return s.handleRotateOwner(c)
	case "admin_snapshot":
		return s.handleSnapshot(c)
	case "admin_restore":
		return s.handleRestore(c)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", c.req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id any, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
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

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	// Check if origin is allowed.
	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CallerHeader)
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target any) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
