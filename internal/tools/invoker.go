package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"kubepilot/internal/message"
)

// Invoker resolves a model's tool-call request and executes it through the
// tool server session.
type Invoker struct {
	caller   Caller
	defaults Defaults
}

// NewInvoker builds an invoker. A nil defaults table gets the stock
// substitutions from DefaultArguments.
func NewInvoker(caller Caller, defaults Defaults) *Invoker {
	if defaults == nil {
		defaults = DefaultArguments()
	}
	return &Invoker{caller: caller, defaults: defaults}
}

// ResolveToolCall returns the first tool-use block of msg in content order.
// The second return is false when the message carries none; the caller
// decides whether that is a protocol violation.
func (inv *Invoker) ResolveToolCall(msg message.Message) (*message.ToolUseBlock, bool) {
	for _, block := range msg.Content {
		if tu, ok := block.(message.ToolUseBlock); ok {
			return &tu, true
		}
	}
	return nil, false
}

// Invoke executes req against the tool server and returns the user-role
// message carrying the tool result block. The tool's primary content must
// decode as a JSON object with a "result" key; the value is wrapped as
// "Result is <value> " for the model.
//
// Failures still yield a usable message: the returned message carries an
// error-status tool result so the caller can feed the failure back to the
// model, alongside the typed error for logging.
func (inv *Invoker) Invoke(ctx context.Context, req *message.ToolUseBlock) (message.Message, error) {
	args := inv.defaults.Apply(req.Name, req.Args)

	raw, err := inv.caller.CallTool(ctx, req.Name, args)
	if err != nil {
		failed := fmt.Errorf("call tool %q: %w", req.Name, err)
		return message.ToolResultMessage(req.ToolUseID, fmt.Sprintf("tool call failed: %v", err), true), failed
	}

	value, err := extractResult(raw)
	if err != nil {
		ferr := &ToolResultFormatError{Tool: req.Name, Raw: raw, Err: err}
		return message.ToolResultMessage(req.ToolUseID, fmt.Sprintf("tool result was not usable: %v", err), true), ferr
	}

	return message.ToolResultMessage(req.ToolUseID, fmt.Sprintf("Result is %v ", value), false), nil
}

// extractResult parses the tool server's primary text content and pulls out
// the value under the mandatory "result" key.
func extractResult(raw string) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("content is not a JSON object: %w", err)
	}
	value, ok := payload["result"]
	if !ok {
		return nil, fmt.Errorf("content has no %q key", "result")
	}
	return value, nil
}
