// Package gateway exposes memory search and transcript recording to upstream
// orchestration over a JSON-RPC websocket, guarded by a shared secret.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/naralabs/nara/internal/observability"
	"github.com/naralabs/nara/internal/tracing"
	"github.com/naralabs/nara/pkg/memory"
	"github.com/naralabs/nara/pkg/session"
	"github.com/rs/zerolog"
)

// Config holds gateway server configuration.
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Memory       *memory.Service
	// Sessions enables the session.append method when set.
	Sessions *session.Manager
	Logger   zerolog.Logger
}

// Server serves memory RPCs over websocket connections.
type Server struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.Mutex
	shutdown bool
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Memory == nil {
		return nil, fmt.Errorf("memory service is required")
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}

	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: cfg.Logger.With().Str("component", "gateway").Logger(),
	}, nil
}

// Start begins serving. It blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", observability.Handler())

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Gateway listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	connID, _ := gonanoid.New()
	logger := s.logger.With().Str("conn_id", connID).Logger()
	logger.Debug().Msg("Client connected")

	ctx := tracing.WithTraceID(r.Context(), tracing.NewTraceID())

	defer func() {
		conn.Close()
		logger.Debug().Msg("Client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		resp := s.dispatch(ctx, data)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
			return
		}
	}
}

// authorized checks the shared secret, from header or query parameter.
func (s *Server) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Gateway-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.SharedSecret)) == 1
}

func (s *Server) dispatch(ctx context.Context, data []byte) RPCResponse {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse("", ParseError, "parse error", err.Error())
	}
	if req.ID == "" {
		return errorResponse("", InvalidRequest, "missing id field", nil)
	}
	if req.Method == "" {
		return errorResponse(req.ID, InvalidRequest, "missing method field", nil)
	}

	switch req.Method {
	case "memory.search":
		return s.handleSearch(ctx, req)
	case "memory.record":
		return s.handleRecord(ctx, req)
	case "session.append":
		return s.handleSessionAppend(req)
	default:
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) handleSearch(ctx context.Context, req RPCRequest) RPCResponse {
	query, _ := req.Params["query"].(string)
	if query == "" {
		return errorResponse(req.ID, InvalidParams, "query is required", nil)
	}

	opts := memory.SearchOptions{}
	if sessionKey, ok := req.Params["session_key"].(string); ok {
		opts.SessionKey = sessionKey
		ctx = tracing.WithSessionKey(ctx, sessionKey)
	}
	if crossSession, ok := req.Params["cross_session"].(bool); ok {
		opts.CrossSession = &crossSession
	}

	hits, err := s.cfg.Memory.Search(ctx, query, opts)
	if err != nil {
		return errorResponse(req.ID, InternalError, "search failed", err.Error())
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			Path:        hit.Chunk.Path,
			Source:      hit.Chunk.Source.String(),
			SessionKey:  hit.Chunk.SessionKey,
			ChunkIndex:  hit.Chunk.Index,
			Content:     hit.Chunk.Content,
			Score:       hit.Score,
			VectorScore: hit.VectorScore,
			TextScore:   hit.TextScore,
		}
	}

	return RPCResponse{ID: req.ID, Result: map[string]any{"results": results}, JSONRPC: "2.0"}
}

func (s *Server) handleRecord(ctx context.Context, req RPCRequest) RPCResponse {
	sessionKey, _ := req.Params["session_key"].(string)
	sessionFile, _ := req.Params["session_file"].(string)
	if sessionKey == "" || sessionFile == "" {
		return errorResponse(req.ID, InvalidParams, "session_key and session_file are required", nil)
	}

	err := s.cfg.Memory.RecordTranscriptMessage(ctx, memory.TranscriptMessage{
		SessionKey:  sessionKey,
		SessionFile: sessionFile,
		Content:     req.Params["content"],
	})
	if err != nil {
		return errorResponse(req.ID, InternalError, "record failed", err.Error())
	}

	return RPCResponse{ID: req.ID, Result: map[string]any{"recorded": true}, JSONRPC: "2.0"}
}

// handleSessionAppend persists one message to the session transcript. The
// session manager's listeners carry it onward into the memory ingest queue.
func (s *Server) handleSessionAppend(req RPCRequest) RPCResponse {
	if s.cfg.Sessions == nil {
		return errorResponse(req.ID, MethodNotFound, "session persistence is not enabled", nil)
	}

	sessionKey, _ := req.Params["session_key"].(string)
	role, _ := req.Params["role"].(string)
	if sessionKey == "" || role == "" {
		return errorResponse(req.ID, InvalidParams, "session_key and role are required", nil)
	}

	err := s.cfg.Sessions.AppendMessage(sessionKey, session.Message{
		Role:    role,
		Content: req.Params["content"],
	})
	if err != nil {
		return errorResponse(req.ID, InternalError, "append failed", err.Error())
	}

	return RPCResponse{ID: req.ID, Result: map[string]any{"appended": true}, JSONRPC: "2.0"}
}

func errorResponse(id string, code int, message string, data any) RPCResponse {
	return RPCResponse{
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
		JSONRPC: "2.0",
	}
}
