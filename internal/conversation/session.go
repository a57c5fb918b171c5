// Package conversation owns the ordered message history of one agent
// session and the contract for sending a turn to the model endpoint.
package conversation

import (
	"context"
	"fmt"

	"kubepilot/internal/message"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	// StopEndTurn means the model finished its answer.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the model wants a tool invoked before it can
	// continue.
	StopToolUse StopReason = "tool_use"
)

// Usage is the token accounting reported for one model turn.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add folds another turn's accounting into u.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// ConverseRequest is one model invocation: the full history so far plus the
// session's system prompt and the per-query tool configuration.
type ConverseRequest struct {
	ModelID    string
	System     string
	Messages   []message.Message
	ToolConfig map[string]any
}

// ConverseResponse is the model's reply to one ConverseRequest.
type ConverseResponse struct {
	Message    message.Message
	StopReason StopReason
	Usage      Usage
	LatencyMs  int64
}

// ModelClient sends one conversation turn to a model endpoint. Implemented
// by the clients in internal/llm.
type ModelClient interface {
	Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error)
}

// RemoteInvocationError reports a failed model endpoint call. The outbound
// message that triggered the call is already part of the session history
// when this error is returned.
type RemoteInvocationError struct {
	ModelID string
	Err     error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("model %s: remote invocation failed: %v", e.ModelID, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// Reply is the session-level view of a model response.
type Reply struct {
	Message    message.Message
	StopReason StopReason
	// Text is the first text block of the reply, empty when the reply
	// carries none.
	Text      string
	Usage     Usage
	LatencyMs int64
}

// Session owns one append-only conversation history together with the
// system prompt and model id used for every turn. It is not safe for
// concurrent use; the worker processes one query at a time.
type Session struct {
	client  ModelClient
	modelID string
	system  string
	history []message.Message
}

// NewSession builds a session around the given model client.
func NewSession(client ModelClient, modelID, systemPrompt string) *Session {
	return &Session{client: client, modelID: modelID, system: systemPrompt}
}

// SendTurn appends msg to the history, invokes the model with the whole
// history and appends the reply. The outbound append happens before the
// remote call and is not rolled back on failure, so a failed turn leaves an
// unanswered user message at the tail of the history.
func (s *Session) SendTurn(ctx context.Context, msg message.Message, toolConfig map[string]any) (*Reply, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("outbound message: %w", err)
	}

	s.history = append(s.history, msg)

	resp, err := s.client.Converse(ctx, ConverseRequest{
		ModelID:    s.modelID,
		System:     s.system,
		Messages:   s.history,
		ToolConfig: toolConfig,
	})
	if err != nil {
		return nil, &RemoteInvocationError{ModelID: s.modelID, Err: err}
	}
	if err := resp.Message.Validate(); err != nil {
		return nil, &RemoteInvocationError{ModelID: s.modelID, Err: fmt.Errorf("malformed reply: %w", err)}
	}

	s.history = append(s.history, resp.Message)

	text, _ := resp.Message.FirstText()
	return &Reply{
		Message:    resp.Message,
		StopReason: resp.StopReason,
		Text:       text,
		Usage:      resp.Usage,
		LatencyMs:  resp.LatencyMs,
	}, nil
}

// ModelID returns the model identifier every turn is sent to.
func (s *Session) ModelID() string { return s.modelID }

// Len returns the current history length.
func (s *Session) Len() int { return len(s.history) }

// History returns a copy of the message history.
func (s *Session) History() []message.Message {
	out := make([]message.Message, len(s.history))
	copy(out, s.history)
	return out
}
