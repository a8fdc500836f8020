package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ubook/catalog"
	"ubook/core/events"
	"ubook/native/booking"
	"ubook/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeBookingInvalidParams = -32041
	codeBookingNotFound      = -32042
	codeBookingForbidden     = -32043
	codeBookingConflict      = -32044
)

// Scopes carried in the RPC bearer token. Write covers guest transitions;
// operate additionally unlocks confirm and complete.
const (
	ScopeWrite   = "booking:write"
	ScopeOperate = "booking:operate"
)

// bookingLister is the read surface the server needs beyond the engine.
type bookingLister interface {
	BookingsByGuest(common.Address) ([]*booking.Booking, error)
}

// Server exposes the booking engine over JSON-RPC 2.0.
type Server struct {
	engine  *booking.Engine
	lister  bookingLister
	catalog *catalog.Catalog
	events  *events.Recorder
	secret  []byte
	logger  *slog.Logger
	metrics *observability.RPCMetrics
	txNonce atomic.Uint64
}

// NewServer wires the RPC surface. An empty secret disables bearer-token
// authentication; otherwise mutating methods require a signed token.
func NewServer(engine *booking.Engine, lister bookingLister, cat *catalog.Catalog, recorder *events.Recorder, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		lister:  lister,
		catalog: cat,
		events:  recorder,
		secret:  []byte(strings.TrimSpace(secret)),
		logger:  logger,
		metrics: observability.Metrics(),
	}
}

// Router returns the HTTP handler serving the RPC endpoint alongside health
// and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handleRPC)
	return r
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the error object carried in failed responses.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handlerError pairs a protocol error with the HTTP status it rides on.
type handlerError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *handlerError) Error() string { return e.Message }

func errInvalidParams(msg string, data interface{}) *handlerError {
	return &handlerError{HTTPStatus: http.StatusBadRequest, Code: codeBookingInvalidParams, Message: msg, Data: data}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}
	method := strings.TrimSpace(req.Method)
	handler, ok := s.methods()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if scope := requiredScope(method); scope != "" {
		if authErr := s.authorize(r, scope); authErr != nil {
			s.metrics.ObserveError(method, strconv.Itoa(authErr.Code))
			writeError(w, authErr.HTTPStatus, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	started := time.Now()
	result, handlerErr := handler(&req)
	if handlerErr != nil {
		s.metrics.ObserveRequest(method, "error", time.Since(started))
		s.metrics.ObserveError(method, strconv.Itoa(handlerErr.Code))
		s.logger.Warn("rpc request failed", "method", method, "code", handlerErr.Code, "message", handlerErr.Message)
		writeError(w, handlerErr.HTTPStatus, req.ID, handlerErr.Code, handlerErr.Message, handlerErr.Data)
		return
	}
	s.metrics.ObserveRequest(method, "ok", time.Since(started))
	writeResult(w, req.ID, result)
}

type rpcHandler func(*RPCRequest) (interface{}, *handlerError)

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"booking_create":   s.handleBookingCreate,
		"booking_deposit":  s.handleBookingDeposit,
		"booking_confirm":  s.handleBookingConfirm,
		"booking_complete": s.handleBookingComplete,
		"booking_cancel":   s.handleBookingCancel,
		"booking_get":      s.handleBookingGet,
		"booking_list":     s.handleBookingList,
		"booking_nextId":   s.handleBookingNextID,
		"booking_feeBps":   s.handleBookingFeeBps,
		"booking_events":   s.handleBookingEvents,
		"catalog_get":      s.handleCatalogGet,
		"catalog_list":     s.handleCatalogList,
	}
}

// requiredScope maps mutating methods onto the token scope they demand. Read
// methods are open.
func requiredScope(method string) string {
	switch method {
	case "booking_create", "booking_deposit", "booking_cancel":
		return ScopeWrite
	case "booking_confirm", "booking_complete":
		return ScopeOperate
	default:
		return ""
	}
}

func (s *Server) authorize(r *http.Request, requiredScope string) *handlerError {
	if len(s.secret) == 0 {
		return nil
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return &handlerError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		return &handlerError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	scopes, _ := claims["scope"].(string)
	if !hasScope(scopes, requiredScope) {
		return &handlerError{HTTPStatus: http.StatusForbidden, Code: codeBookingForbidden, Message: "token missing required scope", Data: requiredScope}
	}
	return nil
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func hasScope(scopes, required string) bool {
	for _, scope := range strings.Fields(scopes) {
		if scope == required {
			return true
		}
		// The operator scope implies write access.
		if scope == ScopeOperate && required == ScopeWrite {
			return true
		}
	}
	return false
}

// txHash derives a unique transaction hash for a confirmed state change.
func (s *Server) txHash(method string, params []byte) string {
	nonce := s.txNonce.Add(1)
	nonceBytes := []byte(strconv.FormatUint(nonce, 10))
	return ethcrypto.Keccak256Hash([]byte(method), params, nonceBytes).Hex()
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
