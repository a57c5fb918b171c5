package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kubepilot/internal/mcp"
	"kubepilot/internal/tools"
)

func newCalcServer(t *testing.T) *Server {
	t.Helper()
	s := New("kubepilot-tools", "0.1.0")
	desc := tools.Descriptor{
		Name:        "calculate",
		Description: "Perform a basic arithmetic operation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{"type": "string", "title": "Operation"},
				"a":         map[string]any{"type": "number", "title": "A"},
				"b":         map[string]any{"type": "number", "title": "B"},
			},
		},
	}
	err := s.Register(desc, func(ctx context.Context, args map[string]any) (string, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		if args["operation"] == "boom" {
			return "", errors.New("arithmetic exploded")
		}
		return fmt.Sprintf(`{"result": %v}`, a+b), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func TestRegisterRejectsDuplicatesAndBlanks(t *testing.T) {
	s := newCalcServer(t)
	if err := s.Register(tools.Descriptor{Name: "calculate"}, func(context.Context, map[string]any) (string, error) { return "", nil }); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := s.Register(tools.Descriptor{Name: "  "}, func(context.Context, map[string]any) (string, error) { return "", nil }); err == nil {
		t.Fatal("expected blank name to fail")
	}
	if err := s.Register(tools.Descriptor{Name: "noop"}, nil); err == nil {
		t.Fatal("expected nil func to fail")
	}
}

func TestStreamableHTTPEndToEnd(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	client := mcp.NewClient(ts.URL, mcp.TransportStreamableHTTP)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := client.ServerName(); got != "kubepilot-tools" {
		t.Fatalf("server name = %q, want kubepilot-tools", got)
	}

	descs, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "calculate" {
		t.Fatalf("tools = %+v, want single calculate", descs)
	}
	props, ok := descs[0].Properties()
	if !ok {
		t.Fatal("input schema lost its properties in transit")
	}
	if _, ok := props["operation"]; !ok {
		t.Fatalf("properties = %v, missing operation", props)
	}

	out, err := client.CallTool(context.Background(), "calculate", map[string]any{"operation": "add", "a": 40, "b": 13})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if out != `{"result": 53}` {
		t.Fatalf("tool output = %q", out)
	}
}

func TestSSESessionOutlivesDiscoveryStream(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	// Connect closes the event stream once the endpoint is discovered;
	// the session must still be usable for every call after that.
	client := mcp.NewClient(ts.URL, mcp.TransportSSE)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	descs, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("tools = %+v", descs)
	}
	out, err := client.CallTool(context.Background(), "calculate", map[string]any{"operation": "add", "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if out != `{"result": 3}` {
		t.Fatalf("tool output = %q", out)
	}
}

func TestToolFailureComesBackAsToolError(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	client := mcp.NewClient(ts.URL, mcp.TransportStreamableHTTP)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err := client.CallTool(context.Background(), "calculate", map[string]any{"operation": "boom"})
	var toolErr *mcp.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("err = %v, want *mcp.ToolError", err)
	}
	if toolErr.Message != "arithmetic exploded" {
		t.Fatalf("message = %q", toolErr.Message)
	}
}

func TestUnknownToolIsAnRPCError(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	client := mcp.NewClient(ts.URL, mcp.TransportStreamableHTTP)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err := client.CallTool(context.Background(), "no_such_tool", nil)
	var rpcErr *mcp.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *mcp.RPCError", err)
	}
	if rpcErr.Code != -32602 {
		t.Fatalf("code = %d, want -32602", rpcErr.Code)
	}
}

func postRPC(t *testing.T, url string, payload map[string]any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	resp := postRPC(t, ts.URL+"/mcp", map[string]any{
		"jsonrpc": "2.0", "id": 9, "method": "resources/list",
	})
	defer resp.Body.Close()

	var decoded struct {
		ID    int `json:"id"`
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error.Code != -32601 {
		t.Fatalf("code = %d, want -32601", decoded.Error.Code)
	}
	if decoded.ID != 9 {
		t.Fatalf("id = %d, want echo of 9", decoded.ID)
	}
}

func TestNotificationsAreAcceptedWithoutBody(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	resp := postRPC(t, ts.URL+"/mcp", map[string]any{
		"jsonrpc": "2.0", "method": "notifications/initialized",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestUnknownSessionIsRejected(t *testing.T) {
	ts := httptest.NewServer(newCalcServer(t).Handler())
	defer ts.Close()

	resp := postRPC(t, ts.URL+"/messages?session_id=bogus", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
