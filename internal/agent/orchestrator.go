// Package agent drives the query pipeline: one operator query in, at most
// one tool round trip, one final answer out.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"kubepilot/internal/conversation"
	"kubepilot/internal/message"
	"kubepilot/internal/tools"
)

// QueryResult is the outcome of one processed query, including the telemetry
// the worker feeds into the metrics and journal sinks.
type QueryResult struct {
	Answer     string
	StopReason conversation.StopReason

	ToolCalled  bool
	ToolName    string
	ToolOK      bool
	ToolElapsed time.Duration

	Usage     conversation.Usage
	LatencyMs int64
}

// Orchestrator wires one conversation session to the tool registry and the
// invoker that executes tool calls against the tool server.
type Orchestrator struct {
	session  *conversation.Session
	registry *tools.Registry
	invoker  *tools.Invoker
}

// New builds an orchestrator over the given session, registry and invoker.
func New(session *conversation.Session, registry *tools.Registry, invoker *tools.Invoker) *Orchestrator {
	return &Orchestrator{session: session, registry: registry, invoker: invoker}
}

// ProcessQuery runs one operator query to completion. The model sees the
// current tool configuration on every turn. When the first reply stops for a
// tool, that single call is executed and its result fed back; the follow-up
// reply's text is the answer no matter how it stops, so a model asking for a
// second tool gets its request text returned instead of another execution.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (*QueryResult, error) {
	toolConfig, err := o.registry.BuildToolConfig()
	if err != nil {
		return nil, fmt.Errorf("build tool config: %w", err)
	}

	reply, err := o.session.SendTurn(ctx, message.UserText(query), toolConfig)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		StopReason: reply.StopReason,
		Usage:      reply.Usage,
		LatencyMs:  reply.LatencyMs,
	}

	switch reply.StopReason {
	case conversation.StopEndTurn:
		result.Answer = reply.Text
		return result, nil
	case conversation.StopToolUse:
	default:
		return nil, &ProtocolInconsistencyError{
			StopReason: string(reply.StopReason),
			Reason:     "stop reason is not part of the tool-use contract",
		}
	}

	call, ok := o.invoker.ResolveToolCall(reply.Message)
	if !ok {
		return nil, &ProtocolInconsistencyError{
			StopReason: string(reply.StopReason),
			Reason:     "reply carries no tool-use block",
		}
	}

	result.ToolCalled = true
	result.ToolName = call.Name

	started := time.Now()
	resultMsg, invokeErr := o.invoker.Invoke(ctx, call)
	result.ToolElapsed = time.Since(started)
	result.ToolOK = invokeErr == nil
	if invokeErr != nil {
		// The message still carries an error-status tool result, so the
		// model gets to explain the failure in its own words.
		log.Printf("tool %s failed: %v", call.Name, invokeErr)
	}

	final, err := o.session.SendTurn(ctx, resultMsg, toolConfig)
	if err != nil {
		return nil, err
	}

	result.Answer = final.Text
	result.StopReason = final.StopReason
	result.Usage = result.Usage.Add(final.Usage)
	result.LatencyMs += final.LatencyMs
	return result, nil
}
