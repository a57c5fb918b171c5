package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultAgentName = "kubepilot"

// RedisRecorder persists metrics in Redis hashes, namespaced per agent.
type RedisRecorder struct {
	client *redis.Client
	agent  string
}

// NewRedisRecorder connects to Redis at addr. All keys live under the agent
// name.
func NewRedisRecorder(addr, agent string) (*RedisRecorder, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		agent = defaultAgentName
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisRecorder{client: client, agent: agent}, nil
}

func (r *RedisRecorder) cyclesKey() string          { return r.agent + ":metrics:cycles" }
func (r *RedisRecorder) toolsKey() string           { return r.agent + ":metrics:tools" }
func (r *RedisRecorder) toolKey(tool string) string { return r.agent + ":metrics:tool:" + tool }

// RecordCycle accumulates one query cycle.
func (r *RedisRecorder) RecordCycle(ctx context.Context, c Cycle) error {
	key := r.cyclesKey()
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HIncrBy(ctx, key, "latency_ms", c.LatencyMs)
	pipe.HIncrBy(ctx, key, "input_tokens", int64(c.InputTokens))
	pipe.HIncrBy(ctx, key, "output_tokens", int64(c.OutputTokens))
	pipe.HIncrBy(ctx, key, "total_tokens", int64(c.TotalTokens))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// RecordToolCall accumulates one tool execution.
func (r *RedisRecorder) RecordToolCall(ctx context.Context, tool string, ok bool, elapsed time.Duration) error {
	key := r.toolKey(tool)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.toolsKey(), tool)
	pipe.HIncrBy(ctx, key, "call_count", 1)
	if ok {
		pipe.HIncrBy(ctx, key, "success_count", 1)
	} else {
		pipe.HIncrBy(ctx, key, "error_count", 1)
	}
	pipe.HIncrBy(ctx, key, "total_time_ms", elapsed.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// Summary loads and derives the accumulated metrics.
func (r *RedisRecorder) Summary(ctx context.Context) (*Summary, error) {
	fields, err := r.client.HGetAll(ctx, r.cyclesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load cycle metrics: %w", err)
	}
	summary := &Summary{
		TotalCycles:  hashInt(fields, "count"),
		LatencyMs:    hashInt(fields, "latency_ms"),
		InputTokens:  hashInt(fields, "input_tokens"),
		OutputTokens: hashInt(fields, "output_tokens"),
		TotalTokens:  hashInt(fields, "total_tokens"),
		ToolUsage:    map[string]ToolStats{},
	}
	if summary.TotalCycles > 0 {
		summary.AverageCycleTimeMs = float64(summary.LatencyMs) / float64(summary.TotalCycles)
	}

	tools, err := r.client.SMembers(ctx, r.toolsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load tool names: %w", err)
	}
	for _, tool := range tools {
		fields, err := r.client.HGetAll(ctx, r.toolKey(tool)).Result()
		if err != nil {
			return nil, fmt.Errorf("load stats for tool %s: %w", tool, err)
		}
		stats := ToolStats{
			CallCount:    hashInt(fields, "call_count"),
			SuccessCount: hashInt(fields, "success_count"),
			ErrorCount:   hashInt(fields, "error_count"),
			TotalTimeMs:  hashInt(fields, "total_time_ms"),
		}
		if stats.CallCount > 0 {
			stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.CallCount)
			stats.AverageTimeMs = float64(stats.TotalTimeMs) / float64(stats.CallCount)
		}
		summary.ToolUsage[tool] = stats
	}
	return summary, nil
}

// Close releases the Redis connection.
func (r *RedisRecorder) Close() error { return r.client.Close() }

func hashInt(fields map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(fields[key], 10, 64)
	return n
}
