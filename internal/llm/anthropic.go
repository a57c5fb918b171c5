package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"kubepilot/internal/conversation"
	"kubepilot/internal/message"
)

// AnthropicClient adapts the Anthropic messages API to the converse
// contract, including translating the bedrock-shaped tool configuration.
type AnthropicClient struct {
	client    *anthropic.Client
	maxTokens int
}

// NewAnthropicClient builds a client from an API key.
func NewAnthropicClient(apiKey string, maxTokens int) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
	}
}

// Converse sends the full message history and returns the model's reply.
func (c *AnthropicClient) Converse(ctx context.Context, req conversation.ConverseRequest) (*conversation.ConverseResponse, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(req.ModelID)),
		MaxTokens: anthropic.F(int64(c.maxTokens)),
		Messages:  anthropic.F(msgs),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(req.System)})
	}
	if tools := toAnthropicTools(req.ToolConfig); len(tools) > 0 {
		params.Tools = anthropic.F(tools)
	}

	started := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("call anthropic: %w", err)
	}

	reply, err := fromAnthropicMessage(resp)
	if err != nil {
		return nil, err
	}
	return &conversation.ConverseResponse{
		Message:    reply,
		StopReason: conversation.StopReason(resp.StopReason),
		Usage: conversation.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		LatencyMs: time.Since(started).Milliseconds(),
	}, nil
}

func toAnthropicMessages(history []message.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch b := block.(type) {
			case message.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case message.ImageBlock:
				media := "image/" + b.Format
				blocks = append(blocks, anthropic.NewImageBlockBase64(media, base64.StdEncoding.EncodeToString(b.Bytes)))
			case message.ToolUseBlock:
				blocks = append(blocks, anthropic.NewToolUseBlockParam(b.ToolUseID, b.Name, b.Args))
			case message.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			default:
				return nil, fmt.Errorf("unsupported content block %T", block)
			}
		}
		if msg.Role == message.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

// toAnthropicTools unpacks the bedrock toolSpec wrappers into plain tool
// declarations.
func toAnthropicTools(toolConfig map[string]any) []anthropic.ToolParam {
	list, _ := toolConfig["tools"].([]any)
	out := make([]anthropic.ToolParam, 0, len(list))
	for _, item := range list {
		entry, _ := item.(map[string]any)
		spec, _ := entry["toolSpec"].(map[string]any)
		if spec == nil {
			continue
		}
		name, _ := spec["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := spec["description"].(string)
		var schema any = map[string]any{"type": "object"}
		if wrapper, ok := spec["inputSchema"].(map[string]any); ok {
			if js, ok := wrapper["json"]; ok {
				schema = js
			}
		}
		out = append(out, anthropic.ToolParam{
			Name:        anthropic.F(name),
			Description: anthropic.F(desc),
			InputSchema: anthropic.F(interface{}(schema)),
		})
	}
	return out
}

func fromAnthropicMessage(resp *anthropic.Message) (message.Message, error) {
	msg := message.Message{Role: message.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content = append(msg.Content, message.TextBlock{Text: block.Text})
		case "tool_use":
			var args map[string]any
			inputBytes, _ := json.Marshal(block.Input)
			if err := json.Unmarshal(inputBytes, &args); err != nil {
				return message.Message{}, fmt.Errorf("parse tool input for %s: %w", block.Name, err)
			}
			msg.Content = append(msg.Content, message.ToolUseBlock{ToolUseID: block.ID, Name: block.Name, Args: args})
		}
	}
	return msg, nil
}
