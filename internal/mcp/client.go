// Package mcp implements the tool server session: JSON-RPC 2.0 over the
// two supported transports, with tool discovery and invocation on top.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kubepilot/internal/tools"
)

const (
	// ProtocolVersion is the protocol revision offered during initialize.
	ProtocolVersion = "2024-11-05"

	// TransportSSE discovers a session-scoped message endpoint from the
	// server's event stream before issuing RPCs.
	TransportSSE = "sse"
	// TransportStreamableHTTP posts every RPC to a single endpoint and
	// carries the session in a header.
	TransportStreamableHTTP = "streamable-http"

	clientName    = "kubepilot"
	clientVersion = "0.1.0"

	defaultRPCTimeout = 8 * time.Second
	maxFrameBytes     = 1 << 20
)

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp rpc error %d: %s", e.Code, e.Message)
}

// ToolError reports a tool execution failure the server surfaced inside a
// tools/call result rather than as an RPC error.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

// Client is one session against an MCP tool server. It lazily performs the
// initialize handshake on first use and is not safe for concurrent use; the
// worker drives it from a single loop.
type Client struct {
	baseURL    string
	transport  string
	httpClient *http.Client

	messageURL string
	sessionID  string
	serverName string
	nextID     int
	ready      bool
}

// NewClient builds a client for the server at baseURL. The transport picks
// the endpoint suffix: "sse" talks to baseURL/sse, anything else to
// baseURL/mcp.
func NewClient(baseURL, transport string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		transport:  normalizeTransport(transport),
		httpClient: &http.Client{Timeout: defaultRPCTimeout},
	}
}

// SetHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(h *http.Client) {
	if h != nil {
		c.httpClient = h
	}
}

// Endpoint returns the URL the client dials first.
func (c *Client) Endpoint() string {
	if c.transport == TransportSSE {
		return c.baseURL + "/sse"
	}
	return c.baseURL + "/mcp"
}

// Transport returns the normalized transport kind.
func (c *Client) Transport() string { return c.transport }

// ServerName returns the server name reported during initialize, empty
// before Connect.
func (c *Client) ServerName() string { return c.serverName }

// Connect performs endpoint discovery (for SSE) and the initialize
// handshake. Calling it twice is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.ready {
		return nil
	}
	if !isValidURL(c.Endpoint()) {
		return fmt.Errorf("invalid mcp endpoint: %s", c.Endpoint())
	}

	if c.transport == TransportSSE {
		endpoint, sessionID, err := c.discoverEndpoint(ctx)
		if err != nil {
			return err
		}
		c.messageURL = endpoint
		c.sessionID = sessionID
	} else {
		c.messageURL = c.Endpoint()
	}

	result, header, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if session := strings.TrimSpace(header.Get("Mcp-Session-Id")); session != "" {
		c.sessionID = session
	}
	c.serverName = asString(asMap(asMap(result)["serverInfo"])["name"])

	if err := c.notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	c.ready = true
	return nil
}

// ListTools discovers the server's tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	result, _, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	raw := asSlice(asMap(result)["tools"])
	descs := make([]tools.Descriptor, 0, len(raw))
	for _, item := range raw {
		entry := asMap(item)
		name := strings.TrimSpace(asString(entry["name"]))
		if name == "" {
			continue
		}
		descs = append(descs, tools.Descriptor{
			Name:        name,
			Description: asString(entry["description"]),
			InputSchema: asMap(entry["inputSchema"]),
		})
	}
	return descs, nil
}

// CallTool invokes a named tool and returns its primary text content. A
// result the server marked as a tool failure comes back as a ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.Connect(ctx); err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	result, _, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call %q: %w", name, err)
	}

	payload := asMap(result)
	text := extractContentText(payload["content"])
	if isError, _ := payload["isError"].(bool); isError {
		msg := text
		if msg == "" {
			msg = "tool reported an error without detail"
		}
		return "", &ToolError{Tool: name, Message: msg}
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (any, http.Header, error) {
	c.nextID++
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID,
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	return c.do(ctx, payload)
}

func (c *Client) notify(ctx context.Context, method string, params map[string]any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	_, _, err := c.do(ctx, payload)
	return err
}

func (c *Client) do(ctx context.Context, payload map[string]any) (any, http.Header, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messageURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if strings.TrimSpace(c.sessionID) != "" {
		req.Header.Set("Mcp-Session-Id", c.sessionID)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxFrameBytes))
	if err != nil {
		return nil, response.Header, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, response.Header, fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, response.Header, nil
	}

	// Streamable servers may frame the response body as an event stream.
	if frame := sseDataFrame(raw); frame != nil {
		raw = frame
	}

	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, response.Header, fmt.Errorf("decode rpc response: %w", err)
	}
	if errObj, ok := decoded["error"].(map[string]any); ok && len(errObj) > 0 {
		msg := strings.TrimSpace(asString(errObj["message"]))
		if msg == "" {
			msg = "mcp rpc error"
		}
		return nil, response.Header, &RPCError{Code: parseID(errObj["code"]), Message: msg}
	}
	return decoded["result"], response.Header, nil
}

// discoverEndpoint opens the SSE stream and waits for the endpoint event
// that names the session's message-post URL.
func (c *Client) discoverEndpoint(ctx context.Context) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(), nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives the handshake timeout on the shared client, so
	// discovery uses a transport-only client and closes the body itself.
	stream := &http.Client{Transport: c.httpClient.Transport}
	response, err := stream.Do(req)
	if err != nil {
		return "", "", err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", "", fmt.Errorf("sse handshake returned status %d", response.StatusCode)
	}

	sessionID := strings.TrimSpace(response.Header.Get("Mcp-Session-Id"))
	endpoint, err := readSSEEndpoint(ctx, response.Body, c.baseURL)
	if err != nil {
		return "", "", err
	}
	return endpoint, sessionID, nil
}

// readSSEEndpoint scans the event stream for the first endpoint event and
// resolves its payload against the base URL.
func readSSEEndpoint(ctx context.Context, body io.Reader, baseURL string) (string, error) {
	type result struct {
		endpoint string
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 1024), maxFrameBytes)
		eventType := ""
		payload := ""
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				if strings.TrimSpace(payload) != "" && (eventType == "endpoint" || looksLikeURL(payload)) {
					endpoint, err := resolveEndpointURL(baseURL, strings.TrimSpace(payload))
					ch <- result{endpoint: endpoint, err: err}
					return
				}
				eventType = ""
				payload = ""
				continue
			}
			if strings.HasPrefix(line, "event:") {
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if strings.HasPrefix(line, "data:") {
				if payload != "" {
					payload += "\n"
				}
				payload += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- result{"", err}
			return
		}
		ch <- result{"", errors.New("sse endpoint event not found")}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-ch:
		return out.endpoint, out.err
	}
}

func resolveEndpointURL(baseURL, discovered string) (string, error) {
	if isValidURL(discovered) {
		return discovered, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	relative, err := url.Parse(discovered)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relative).String(), nil
}

// sseDataFrame returns the JSON payload of the first data line when body is
// an event-stream frame, nil otherwise.
func sseDataFrame(body []byte) []byte {
	if !bytes.HasPrefix(body, []byte("event:")) && !bytes.HasPrefix(body, []byte("data:")) {
		return nil
	}
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return nil
}

func normalizeTransport(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", TransportSSE:
		return TransportSSE
	case TransportStreamableHTTP, "http", "streamable_http":
		return TransportStreamableHTTP
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func parseID(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case float32:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return -1
		}
		return parsed
	default:
		return -1
	}
}

func asMap(value any) map[string]any {
	if out, ok := value.(map[string]any); ok {
		return out
	}
	return map[string]any{}
}

func asSlice(value any) []any {
	if out, ok := value.([]any); ok {
		return out
	}
	return []any{}
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(value)
	}
}

// extractContentText flattens a tools/call content payload into its text.
func extractContentText(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		contentType := strings.ToLower(strings.TrimSpace(asString(typed["type"])))
		if contentType == "text" || contentType == "" {
			return strings.TrimSpace(asString(typed["text"]))
		}
		if contentType == "resource" {
			resource := asMap(typed["resource"])
			return strings.TrimSpace(asString(resource["text"]))
		}
	case []any:
		lines := make([]string, 0, len(typed))
		for _, item := range typed {
			if text := extractContentText(item); text != "" {
				lines = append(lines, text)
			}
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func looksLikeURL(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "http://") ||
		strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "/")
}

func isValidURL(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return strings.TrimSpace(parsed.Scheme) != "" && strings.TrimSpace(parsed.Host) != ""
}
