// Package llm provides the model clients behind the conversation layer:
// Amazon Bedrock over its converse REST API, the Anthropic messages API,
// and an offline engine for development without credentials.
package llm

import (
	"errors"
	"fmt"
	"strings"

	"kubepilot/internal/conversation"
)

const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"

	// DefaultModelID is used when no model is configured.
	DefaultModelID = "amazon.nova-lite-v1:0"

	defaultMaxTokens = 2048
)

// Options selects and configures a provider.
type Options struct {
	Provider        string
	Region          string
	BedrockToken    string
	AnthropicAPIKey string
	MaxTokens       int
}

// New builds the model client for the configured provider. Bedrock is the
// default.
func New(opts Options) (conversation.ModelClient, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderBedrock:
		if strings.TrimSpace(opts.BedrockToken) == "" {
			return nil, errors.New("bedrock provider requires a bearer token")
		}
		return NewBedrockClient(opts.Region, opts.BedrockToken, opts.MaxTokens), nil
	case ProviderAnthropic:
		if strings.TrimSpace(opts.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic provider requires an API key")
		}
		return NewAnthropicClient(opts.AnthropicAPIKey, opts.MaxTokens), nil
	case ProviderLocal:
		return NewLocalEngine(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}

// APIError is a non-2xx reply from a model provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("model API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("model API error %d: %s", e.StatusCode, e.Message)
}
