// Package server composes the Task Manager with the JSON-RPC, SSE and
// well-known-endpoint HTTP surfaces of the process cmd/serve.go launches,
// mirroring the teacher's own Handlers()-map composition root. The gRPC
// surface is not part of this package; cmd/serve.go starts it separately.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/auth"
	"github.com/theapemachine/a2a-go/pkg/jsonrpc"
	"github.com/theapemachine/a2a-go/pkg/metrics"
	"github.com/theapemachine/a2a-go/pkg/sse"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
)

// Server is the HTTP composition root: one POST "/" JSON-RPC endpoint
// (with message/stream diverted to SSE), the well-known manifest/docs/
// favicon/metrics endpoints, and an optional auth.Middleware wrapping all
// of it except the public paths.
type Server struct {
	TaskManager *taskmanager.TaskManager
	Card        a2a.AgentCard
	Metrics     *metrics.StreamingMetrics
	Auth        *auth.Middleware
	StaticDir   string // serves /docs and /favicon.ico when non-empty

	rpc    *jsonrpc.Server
	broker *sse.Broker
}

// New wires the JSON-RPC method table over tm and returns a ready Server.
// Metrics defaults to the SSE broker's own instance so /metrics reflects
// actual streaming activity.
func New(tm *taskmanager.TaskManager, card a2a.AgentCard) *Server {
	broker := sse.NewBroker()
	s := &Server{
		TaskManager: tm,
		Card:        card,
		Metrics:     broker.Metrics,
		rpc:         jsonrpc.NewServer(),
		broker:      broker,
	}
	registerMethods(s.rpc, tm)
	return s
}

// Handler builds the full mux, applying Auth (if set) to everything except
// the public well-known paths.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", s.handleManifest)
	mux.HandleFunc("/docs", s.handleStatic("docs.html"))
	mux.HandleFunc("/favicon.ico", s.handleStatic("favicon.ico"))
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	mux.HandleFunc("/", s.handleRPC)

	var handler http.Handler = mux
	if s.Auth != nil {
		handler = s.Auth.Handler(mux)
	}
	return handler
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Card); err != nil {
		log.Error("server: failed to encode agent card", "error", err)
	}
}

// handleStatic serves a single static asset from StaticDir, 404 if the
// directory is unset or the file is absent (spec §4.5 "static assets; 404
// if absent").
func (s *Server) handleStatic(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.StaticDir == "" {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(s.StaticDir, name)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}

// probeMethod is the minimal JSON-RPC request shape peeked at before
// dispatch to decide whether to hand off to the SSE broker instead of the
// generic JSON responder.
type probeMethod struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// handleRPC implements the single POST "/" endpoint: message/stream is
// diverted to the SSE broker (spec §4.5: "message/stream returns a
// server-sent-event stream"); every other method goes through the generic
// jsonrpc.Server responder.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var probe probeMethod
	if json.Unmarshal(body, &probe) == nil && probe.Method == "message/stream" {
		s.handleStreamMessage(w, r, probe)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	s.rpc.ServeHTTP(w, r)
}

func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request, probe probeMethod) {
	var params a2a.MessageSendParams
	if err := json.Unmarshal(probe.Params, &params); err != nil {
		jsonrpc.WriteError(w, probe.ID, a2a.ErrInvalidArgument("invalid message/stream params: %s", err))
		return
	}

	stream, err := s.TaskManager.StreamMessage(r.Context(), params)
	if err != nil {
		// Errors before the first frame still travel as a JSON-RPC error
		// envelope; only a successfully opened stream switches the
		// connection to text/event-stream.
		jsonrpc.WriteError(w, probe.ID, err)
		return
	}
	defer stream.Close()

	if err := s.broker.Serve(w, r, stream); err != nil {
		log.Error("server: sse stream ended with error", "error", err)
	}
}
