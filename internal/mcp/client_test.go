package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rpcReply(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

// fakeServer serves a minimal streamable-http MCP endpoint at /mcp.
func fakeServer(t *testing.T, tools []map[string]any, callResult map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		switch req["method"] {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-42")
			rpcReply(w, req["id"], map[string]any{
				"protocolVersion": ProtocolVersion,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "fake", "version": "0"},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			if r.Header.Get("Mcp-Session-Id") != "sess-42" {
				t.Errorf("session header not carried: %q", r.Header.Get("Mcp-Session-Id"))
			}
			rpcReply(w, req["id"], map[string]any{"tools": tools})
		case "tools/call":
			rpcReply(w, req["id"], callResult)
		default:
			t.Fatalf("unexpected method %v", req["method"])
		}
	})
	return httptest.NewServer(mux)
}

func TestEndpointSuffixConvention(t *testing.T) {
	cases := []struct {
		transport string
		want      string
	}{
		{"sse", "http://host:5001/sse"},
		{"", "http://host:5001/sse"},
		{"streamable-http", "http://host:5001/mcp"},
		{"http", "http://host:5001/mcp"},
	}
	for _, tc := range cases {
		c := NewClient("http://host:5001/", tc.transport)
		if got := c.Endpoint(); got != tc.want {
			t.Fatalf("transport %q endpoint = %q, want %q", tc.transport, got, tc.want)
		}
	}
}

func TestListToolsStreamableHTTP(t *testing.T) {
	srv := fakeServer(t, []map[string]any{
		{
			"name":        "calculate",
			"description": "arithmetic",
			"inputSchema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"a": map[string]any{"type": "number", "title": "A"}},
			},
		},
	}, nil)
	defer srv.Close()

	c := NewClient(srv.URL, TransportStreamableHTTP)
	descs, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "calculate" {
		t.Fatalf("descriptors = %+v", descs)
	}
	props, ok := descs[0].Properties()
	if !ok || props["a"] == nil {
		t.Fatalf("input schema lost: %+v", descs[0].InputSchema)
	}
	if c.ServerName() != "fake" {
		t.Fatalf("server name = %q", c.ServerName())
	}
}

func TestCallToolExtractsPrimaryText(t *testing.T) {
	srv := fakeServer(t, nil, map[string]any{
		"content": []any{map[string]any{"type": "text", "text": `{"result": 53}`}},
		"isError": false,
	})
	defer srv.Close()

	c := NewClient(srv.URL, TransportStreamableHTTP)
	text, err := c.CallTool(context.Background(), "calculate", map[string]any{"a": 9})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if text != `{"result": 53}` {
		t.Fatalf("text = %q", text)
	}
}

func TestCallToolSurfacesToolError(t *testing.T) {
	srv := fakeServer(t, nil, map[string]any{
		"content": []any{map[string]any{"type": "text", "text": "division by zero"}},
		"isError": true,
	})
	defer srv.Close()

	c := NewClient(srv.URL, TransportStreamableHTTP)
	_, err := c.CallTool(context.Background(), "calculate", nil)
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if terr.Tool != "calculate" || terr.Message != "division by zero" {
		t.Fatalf("tool error = %+v", terr)
	}
}

func TestRPCErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["method"] == "initialize" {
			rpcReply(w, req["id"], map[string]any{"serverInfo": map[string]any{"name": "fake"}})
			return
		}
		if req["id"] == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, TransportStreamableHTTP)
	_, err := c.ListTools(context.Background())
	var rerr *RPCError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rerr.Code != -32601 {
		t.Fatalf("code = %d", rerr.Code)
	}
}

func TestSSEEndpointDiscovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing event-stream accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: endpoint\n")
		fmt.Fprint(w, "data: /messages?session_id=abc\n\n")
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "abc" {
			t.Errorf("session query not carried: %s", r.URL.RawQuery)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req["method"] {
		case "initialize":
			rpcReply(w, req["id"], map[string]any{"serverInfo": map[string]any{"name": "sse-fake"}})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			rpcReply(w, req["id"], map[string]any{"tools": []any{}})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, TransportSSE)
	descs, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools over sse: %v", err)
	}
	if len(descs) != 0 {
		t.Fatalf("expected empty tool list, got %+v", descs)
	}
	if c.ServerName() != "sse-fake" {
		t.Fatalf("server name = %q", c.ServerName())
	}
}

func TestDoParsesEventStreamFramedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["id"] == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frame, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": map[string]any{"tools": []any{}}})
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, TransportStreamableHTTP)
	if _, err := c.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools with framed body: %v", err)
	}
}
