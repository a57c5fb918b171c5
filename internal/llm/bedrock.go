package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kubepilot/internal/conversation"
	"kubepilot/internal/message"
)

const (
	defaultBedrockRegion  = "us-east-1"
	defaultRequestTimeout = 2 * time.Minute
	maxResponseBytes      = 1 << 20
)

// BedrockClient talks to the Amazon Bedrock runtime converse API using
// bearer token auth.
type BedrockClient struct {
	endpoint   string
	token      string
	maxTokens  int
	httpClient *http.Client
}

// NewBedrockClient builds a client for the given region.
func NewBedrockClient(region, token string, maxTokens int) *BedrockClient {
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultBedrockRegion
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &BedrockClient{
		endpoint:   fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region),
		token:      token,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}
}

// SetEndpoint overrides the regional endpoint. Tests point it at a local
// server.
func (c *BedrockClient) SetEndpoint(endpoint string) {
	c.endpoint = strings.TrimRight(endpoint, "/")
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *BedrockClient) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

type converseResponse struct {
	Output struct {
		Message message.Message `json:"message"`
	} `json:"output"`
	StopReason string `json:"stopReason"`
	Usage      struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	} `json:"usage"`
	Metrics struct {
		LatencyMs int64 `json:"latencyMs"`
	} `json:"metrics"`
}

// Converse sends the full message history and returns the model's reply.
func (c *BedrockClient) Converse(ctx context.Context, req conversation.ConverseRequest) (*conversation.ConverseResponse, error) {
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		modelID = DefaultModelID
	}

	payload := map[string]any{
		"messages":        req.Messages,
		"inferenceConfig": map[string]any{"maxTokens": c.maxTokens},
	}
	if strings.TrimSpace(req.System) != "" {
		payload["system"] = []map[string]string{{"text": req.System}}
	}
	if len(req.ToolConfig) > 0 {
		payload["toolConfig"] = req.ToolConfig
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode converse request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	endpoint := c.endpoint + "/model/" + url.PathEscape(modelID) + "/converse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build converse request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call bedrock: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read bedrock response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp, raw)
	}

	var decoded converseResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode bedrock response: %w", err)
	}

	latency := decoded.Metrics.LatencyMs
	if latency == 0 {
		latency = time.Since(started).Milliseconds()
	}
	return &conversation.ConverseResponse{
		Message:    decoded.Output.Message,
		StopReason: conversation.StopReason(decoded.StopReason),
		Usage: conversation.Usage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
		},
		LatencyMs: latency,
	}, nil
}

func decodeAPIError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if code := resp.Header.Get("x-amzn-errortype"); code != "" {
		if i := strings.IndexByte(code, ':'); i >= 0 {
			code = code[:i]
		}
		apiErr.Code = code
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
