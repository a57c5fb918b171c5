// Package mcpserver hosts tools behind the MCP wire protocol: JSON-RPC 2.0
// over the streamable HTTP endpoint and the SSE endpoint-discovery flow.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"kubepilot/internal/tools"
)

const (
	// ProtocolVersion is the protocol revision reported to clients.
	ProtocolVersion = "2024-11-05"

	maxFrameBytes = 1 << 20
	pingInterval  = 15 * time.Second
)

// ToolFunc executes one tool call and returns the primary text content.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

type registeredTool struct {
	desc tools.Descriptor
	fn   ToolFunc
}

// Server hosts a fixed set of named, schema-described tools.
type Server struct {
	name    string
	version string

	mu       sync.RWMutex
	tools    map[string]registeredTool
	order    []string
	sessions map[string]struct{}
}

// New builds an empty tool server identified by name and version in the
// initialize handshake.
func New(name, version string) *Server {
	return &Server{
		name:     name,
		version:  version,
		tools:    map[string]registeredTool{},
		sessions: map[string]struct{}{},
	}
}

// Register adds one tool. The descriptor must carry a name; duplicate names
// are rejected.
func (s *Server) Register(desc tools.Descriptor, fn ToolFunc) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %q has no implementation", name)
	}
	desc.Name = name

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	s.tools[name] = registeredTool{desc: desc, fn: fn}
	s.order = append(s.order, name)
	return nil
}

// ToolNames returns the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Handler returns the HTTP surface: GET /sse with POST /messages for the
// SSE transport, and POST /mcp for streamable HTTP.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/sse", s.handleSSE)
	r.Post("/messages", s.handleMessage)
	r.Post("/mcp", s.handleMessage)
	return r
}

// handleSSE issues a session and announces its message endpoint as the
// first event. The session stays valid after the stream drops, since
// clients may close it once discovery is done.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	s.addSession(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sessionID)
	flusher.Flush()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" && !s.hasSession(sessionID) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Method) == "" {
		writeRPCError(w, nil, -32700, "parse error")
		return
	}

	// Notifications carry no id and expect no body.
	if strings.HasPrefix(req.Method, "notifications/") {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, req)
	case "tools/list":
		writeRPCResult(w, req.ID, map[string]any{"tools": s.toolList()})
	case "tools/call":
		s.handleToolCall(w, r, req)
	default:
		writeRPCError(w, req.ID, -32601, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	// The streamable endpoint gets its session via response header; the
	// SSE flow already established one through discovery.
	if r.URL.Path == "/mcp" {
		sessionID := uuid.NewString()
		s.addSession(sessionID)
		w.Header().Set("Mcp-Session-Id", sessionID)
	}
	writeRPCResult(w, req.ID, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": s.name, "version": s.version},
	})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCError(w, req.ID, -32602, "invalid tool call params")
			return
		}
	}
	name := strings.TrimSpace(params.Name)

	s.mu.RLock()
	tool, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		writeRPCError(w, req.ID, -32602, fmt.Sprintf("unknown tool %q", name))
		return
	}

	out, err := tool.fn(r.Context(), params.Arguments)
	if err != nil {
		log.Printf("tool %s failed: %v", name, err)
		writeRPCResult(w, req.ID, map[string]any{
			"content": []any{map[string]any{"type": "text", "text": err.Error()}},
			"isError": true,
		})
		return
	}
	writeRPCResult(w, req.ID, map[string]any{
		"content": []any{map[string]any{"type": "text", "text": out}},
		"isError": false,
	})
}

func (s *Server) toolList() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, 0, len(s.order))
	for _, name := range s.order {
		tool, ok := s.tools[name]
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"name":        tool.desc.Name,
			"description": tool.desc.Description,
			"inputSchema": tool.desc.InputSchema,
		})
	}
	return out
}

func (s *Server) addSession(id string) {
	s.mu.Lock()
	s.sessions[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) hasSession(id string) bool {
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	return ok
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      rawOrNull(id),
		"result":  result,
	})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      rawOrNull(id),
		"error":   map[string]any{"code": code, "message": message},
	})
}

func rawOrNull(id json.RawMessage) any {
	if len(id) == 0 {
		return nil
	}
	return id
}
