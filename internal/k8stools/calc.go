package k8stools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kubepilot/internal/tools"
)

func calculateDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "calculate",
		Description: "Perform a basic arithmetic operation on two numbers. Supported operations: add, subtract, multiply, divide.",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "calculateArguments",
			"properties": map[string]any{
				"operation": map[string]any{"type": "string", "title": "Operation"},
				"a":         map[string]any{"type": "number", "title": "A"},
				"b":         map[string]any{"type": "number", "title": "B"},
			},
			"required": []any{"operation", "a", "b"},
		},
	}
}

func calculate(ctx context.Context, args map[string]any) (string, error) {
	op, _ := args["operation"].(string)
	a, aok := toFloat(args["a"])
	b, bok := toFloat(args["b"])
	if !aok || !bok {
		return "", errors.New("operands a and b must be numbers")
	}

	var value float64
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "add", "plus", "+":
		value = a + b
	case "subtract", "minus", "-":
		value = a - b
	case "multiply", "times", "*":
		value = a * b
	case "divide", "/":
		if b == 0 {
			return "", errors.New("cannot divide by zero")
		}
		value = a / b
	default:
		return "", fmt.Errorf("unsupported operation %q", op)
	}
	return wrapResult(value)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
