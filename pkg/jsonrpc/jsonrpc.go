// Package jsonrpc implements the wire envelope and method router of the
// JSON-RPC surface (spec §4.5): a single POST endpoint dispatching to
// Register-ed handlers by method name.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// Request is a JSON-RPC 2.0 request object; Params stays raw so each
// handler can unmarshal into its own params type.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the JSON-RPC error object.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var (
	errParseError     = &WireError{Code: -32700, Message: "Parse error"}
	errInvalidRequest = &WireError{Code: -32600, Message: "Invalid Request"}
	errMethodNotFound = &WireError{Code: -32601, Message: "Method not found"}
)

// toWireError translates the core's *a2a.Error taxonomy into a JSON-RPC
// error object, per spec §4.5's code table.
func toWireError(err error) *WireError {
	if aerr, ok := a2a.AsError(err); ok {
		return &WireError{Code: aerr.JSONRPCCode(), Message: aerr.Message}
	}
	return &WireError{Code: -32000, Message: err.Error()}
}

// HandlerFunc processes the raw params field and returns a result or an
// error. The core error taxonomy (*a2a.Error) is translated to a wire code
// by the server; any other error becomes an internal (-32000) error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server multiplexes JSON-RPC method names to handler functions, matching
// the teacher's minimal Register/ServeHTTP RPC helper.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewServer constructs an empty method router.
func NewServer() *Server {
	return &Server{handlers: make(map[string]HandlerFunc)}
}

// Register binds method to handler; re-registering a method overwrites it.
func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) lookup(method string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// ServeHTTP implements the single POST / endpoint, including batch request
// support (an array of request objects).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, nil, errParseError)
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		respondError(w, nil, errInvalidRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if body[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(body, &batch); err != nil {
			respondError(w, nil, errParseError)
			return
		}

		var responses []Response
		for _, req := range batch {
			resp := s.handle(r.Context(), &req)
			if len(req.ID) != 0 {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(responses)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, nil, errParseError)
		return
	}

	resp := s.handle(r.Context(), &req)
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(ctx context.Context, req *Request) Response {
	if req.JSONRPC != "2.0" {
		return newErrorResponse(req.ID, errInvalidRequest)
	}

	h, ok := s.lookup(req.Method)
	if !ok {
		return newErrorResponse(req.ID, errMethodNotFound)
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		return newErrorResponse(req.ID, toWireError(err))
	}

	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func newErrorResponse(id json.RawMessage, e *WireError) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: e}
}

func respondError(w http.ResponseWriter, id json.RawMessage, e *WireError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(newErrorResponse(id, e))
}

// WriteError writes err as a JSON-RPC error response for id, translating
// *a2a.Error kinds into their wire codes. Used by handlers that bypass the
// Server router (e.g. the SSE divert path) but still owe the caller a
// well-formed envelope on failure.
func WriteError(w http.ResponseWriter, id json.RawMessage, err error) {
	respondError(w, id, toWireError(err))
}
