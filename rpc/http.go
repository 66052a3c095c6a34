package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vaultcore/core"
	nativecommon "vaultcore/native/common"
	"vaultcore/native/token"
	"vaultcore/native/vault"
	"vaultcore/observability/metrics"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	adminScope             = "vault.admin"
)

// Environment variables consulted at server construction. The bearer token
// guards signed mutations; the JWT secret guards the admin methods.
const (
	AuthTokenEnv = "VAULT_RPC_TOKEN"
	JWTSecretEnv = "VAULT_JWT_SECRET"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeModulePaused   = -32010
	codeRateLimited    = -32020
	codeNodeHalted     = -32030
	codeStateConflict  = -32040
	codeInsufficient   = -32050
)

// Server exposes the vault node over a single JSON-RPC endpoint plus a
// websocket event stream. Queries are open; mutations require the bearer
// token and a recovered caller signature; price administration additionally
// requires a JWT carrying the vault.admin scope.
type Server struct {
	node *core.Node

	authToken string
	admin     *adminAuthorizer
	limits    *requestLimiter
	logger    *slog.Logger

	maxRequestBytes int64
}

// ServerOptions tune the transport limits. Zero values fall back to the
// defaults the daemon config also uses.
type ServerOptions struct {
	RatePerSecond   float64
	RateBurst       int
	MaxRequestBytes int64
	Logger          *slog.Logger
}

func NewServer(node *core.Node, opts ServerOptions) *Server {
	token := strings.TrimSpace(os.Getenv(AuthTokenEnv))
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := opts.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBytes
	}
	return &Server{
		node:            node,
		authToken:       token,
		admin:           newAdminAuthorizer(os.Getenv(JWTSecretEnv)),
		limits:          newRequestLimiter(opts.RatePerSecond, opts.RateBurst),
		logger:          logger,
		maxRequestBytes: maxBytes,
	}
}

// Router assembles the full HTTP surface: the RPC endpoint, the websocket
// event stream, Prometheus metrics and the health probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/rpc", otelhttp.NewHandler(http.HandlerFunc(s.handle), "vault.rpc"))
	r.Get("/ws/events", s.handleEventsWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealthz)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if s.node != nil && s.node.Halted() {
		http.Error(w, "halted", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeNodeError maps engine and node sentinels onto stable RPC codes so
// clients can branch without string matching.
func writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, core.ErrHalted):
		writeError(w, http.StatusServiceUnavailable, id, codeNodeHalted, "node halted pending restart", err.Error())
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, err.Error(), nil)
	case errors.Is(err, core.ErrNonceReplayed):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, vault.ErrUnauthorized), errors.Is(err, vault.ErrBackdateDisabled),
		errors.Is(err, token.ErrAuthorityMismatch):
		writeError(w, http.StatusUnauthorized, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, vault.ErrNotInitialized), errors.Is(err, vault.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, id, codeStateConflict, err.Error(), nil)
	case errors.Is(err, vault.ErrInsufficientFunds), errors.Is(err, vault.ErrCustodyShortfall),
		errors.Is(err, token.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, id, codeInsufficient, err.Error(), nil)
	case errors.Is(err, vault.ErrZeroAmount), errors.Is(err, vault.ErrConstraintViolation),
		errors.Is(err, vault.ErrArithmeticOverflow), errors.Is(err, vault.ErrArithmeticUnderflow),
		errors.Is(err, token.ErrInvalidAmount), errors.Is(err, token.ErrUnknownAsset),
		errors.Is(err, token.ErrBalanceOverflow):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusBadRequest, id, codeServerError, err.Error(), nil)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	method := s.dispatch(rec, r)
	metrics.Vault().ObserveRPC(method, rec.status, time.Since(started))
}

// dispatch parses the envelope and routes to the method handler, returning
// the method label for metrics.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) string {
	reader := http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxRequestBytes)
			metrics.Vault().RecordThrottle("body_too_large")
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return "unknown"
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return "unknown"
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return "unknown"
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return "unknown"
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return "unknown"
	}

	switch req.Method {
	case "vault_initializeState":
		s.handleMutation(w, r, req, s.handleVaultInitializeState)
	case "vault_initializeDeposit":
		s.handleMutation(w, r, req, s.handleVaultInitializeDeposit)
	case "vault_deposit":
		s.handleMutation(w, r, req, s.handleVaultDeposit)
	case "vault_withdraw":
		s.handleMutation(w, r, req, s.handleVaultWithdraw)
	case "vault_updatePrice":
		s.handleAdminMutation(w, r, req, s.handleVaultUpdatePrice)
	case "vault_setLastUpdated":
		s.handleAdminMutation(w, r, req, s.handleVaultSetLastUpdated)
	case "token_transfer":
		s.handleMutation(w, r, req, s.handleTokenTransfer)
	case "vault_getState":
		s.handleVaultGetState(w, r, req)
	case "vault_getDeposit":
		s.handleVaultGetDeposit(w, r, req)
	case "vault_previewRedeem":
		s.handleVaultPreviewRedeem(w, r, req)
	case "vault_getAuthority":
		s.handleVaultGetAuthority(w, r, req)
	case "vault_getNonce":
		s.handleVaultGetNonce(w, r, req)
	case "token_getBalance":
		s.handleTokenGetBalance(w, r, req)
	case "token_getSupply":
		s.handleTokenGetSupply(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
	return req.Method
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

// handleMutation gates state-changing methods behind the bearer token and the
// per-source rate limit before running the handler.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	source := clientSource(r)
	if !s.limits.allow(source) {
		metrics.Vault().RecordThrottle("rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", source)
		return
	}
	next(w, r, req)
}

// handleAdminMutation additionally demands the vault.admin JWT scope.
func (s *Server) handleAdminMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAdmin(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	source := clientSource(r)
	if !s.limits.allow(source) {
		metrics.Vault().RecordThrottle("rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", source)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
