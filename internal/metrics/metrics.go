// Package metrics accumulates per-query agent metrics in Redis and
// publishes the metric schema document to object storage.
package metrics

import (
	"context"
	"time"
)

// Cycle captures one full query round trip through the model.
type Cycle struct {
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ToolStats aggregates the execution stats of one tool.
type ToolStats struct {
	AverageTimeMs float64 `json:"average_time"`
	CallCount     int64   `json:"call_count"`
	ErrorCount    int64   `json:"error_count"`
	SuccessCount  int64   `json:"success_count"`
	SuccessRate   float64 `json:"success_rate"`
	TotalTimeMs   int64   `json:"total_time"`
}

// Summary is the accumulated view across all recorded cycles.
type Summary struct {
	TotalCycles        int64                `json:"total_cycles"`
	LatencyMs          int64                `json:"latencyMs"`
	InputTokens        int64                `json:"inputTokens"`
	OutputTokens       int64                `json:"outputTokens"`
	TotalTokens        int64                `json:"totalTokens"`
	AverageCycleTimeMs float64              `json:"average_cycle_time"`
	ToolUsage          map[string]ToolStats `json:"tool_usage"`
}

// Recorder accumulates cycles and tool calls.
type Recorder interface {
	RecordCycle(ctx context.Context, c Cycle) error
	RecordToolCall(ctx context.Context, tool string, ok bool, elapsed time.Duration) error
	Summary(ctx context.Context) (*Summary, error)
}
