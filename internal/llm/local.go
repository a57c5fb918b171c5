package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"kubepilot/internal/conversation"
	"kubepilot/internal/message"
)

// LocalEngine answers deterministically without calling any remote model.
// It keeps the pipeline runnable in environments with no provider
// credentials. It never requests tools and always stops with end_turn.
type LocalEngine struct{}

// NewLocalEngine builds the offline engine.
func NewLocalEngine() *LocalEngine { return &LocalEngine{} }

var simpleArithmeticPattern = regexp.MustCompile(`(-?\d+)\s*([+\-x*/])\s*(-?\d+)`)

// Converse answers the most recent user message.
func (e *LocalEngine) Converse(ctx context.Context, req conversation.ConverseRequest) (*conversation.ConverseResponse, error) {
	if e == nil {
		return nil, errors.New("local engine is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := lastUserText(req.Messages)
	answer := localDeterministicResponse(prompt)

	inTokens := estimateTokens(prompt)
	outTokens := estimateTokens(answer)
	return &conversation.ConverseResponse{
		Message:    message.AssistantText(answer),
		StopReason: conversation.StopEndTurn,
		Usage: conversation.Usage{
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  inTokens + outTokens,
		},
		LatencyMs: 1,
	}, nil
}

func lastUserText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != message.RoleUser {
			continue
		}
		if text, ok := history[i].FirstText(); ok {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// localDeterministicResponse keeps offline runs reproducible without
// echoing user prompts.
func localDeterministicResponse(prompt string) string {
	if result, ok := solveSimpleArithmetic(prompt); ok {
		return result
	}
	return "I can help with that. Please provide a concrete question."
}

func solveSimpleArithmetic(prompt string) (string, bool) {
	match := simpleArithmeticPattern.FindStringSubmatch(prompt)
	if len(match) != 4 {
		return "", false
	}

	left, err := strconv.Atoi(strings.TrimSpace(match[1]))
	if err != nil {
		return "", false
	}
	right, err := strconv.Atoi(strings.TrimSpace(match[3]))
	if err != nil {
		return "", false
	}

	switch strings.TrimSpace(match[2]) {
	case "+":
		return strconv.Itoa(left + right), true
	case "-":
		return strconv.Itoa(left - right), true
	case "*", "x":
		return strconv.Itoa(left * right), true
	case "/":
		if right == 0 {
			return "", false
		}
		return strconv.Itoa(left / right), true
	default:
		return "", false
	}
}

func estimateTokens(text string) int {
	return len(text)/4 + 1
}
