// Package config loads the agent configuration: built-in defaults, an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the operating instruction set the agent ships with.
// Override it via the config file or KUBEPILOT_SYSTEM_PROMPT.
const DefaultSystemPrompt = `[purposeSummary] You are a skilled kubernetes operation agent. You have the tools necessary to get specific details from a kubernetes cluster. You will use these tools and return the right information to the users.[/purposeSummary] [instructions] Users will ask you to retrive information for the kubernetes cluster. You will use the tools to get the results. The results from the tool will be in json format, so you will need to parse it to get the right information. 1. For pod information, always specify the namespace and status along with the pod name. 1.1 If asked to get a count of pods, specify the namespaces and the pod count in the namespaces, your output should be in the format n pods in xyz namespace, y pods in xyz namespace, total n pods. 2. For information regarding pod to pod communication, networking, you will get the network policy information. You will check if network policies allow access to ingress/egress to the pod to make an assessment if it can communicate with another pod. 3. A user may ask you to fix the issue or provide guidance on how to fix. Before you run any create/update operations, always show the changes to the user and get confirmation before executing[/instructions]`

type Config struct {
	// Model provider
	Provider     string `yaml:"provider"` // "bedrock" | "anthropic" | "local"
	ModelID      string `yaml:"model_id"`
	Region       string `yaml:"region"`
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`

	// Credentials come from the environment only.
	BedrockToken    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`

	// Tool server
	MCPURL         string `yaml:"mcp_url"`
	MCPTransport   string `yaml:"mcp_transport"` // "sse" | "streamable-http"
	ToolServerAddr string `yaml:"toolserver_addr"`

	// Mailbox
	MailboxDir          string `yaml:"mailbox_dir"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	PollAttempts        int    `yaml:"poll_attempts"`
	IdleSleepSeconds    int    `yaml:"idle_sleep_seconds"`

	// Journal
	DBDriver string `yaml:"db_driver"` // "sqlite" | "postgres"
	DBPath   string `yaml:"db_path"`
	DBDSN    string `yaml:"db_dsn"`

	// Metrics; empty RedisAddr disables recording, empty MinioEndpoint
	// disables schema publishing.
	RedisAddr      string `yaml:"redis_addr"`
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`
	MetricsCron    string `yaml:"metrics_cron"`
	AgentName      string `yaml:"agent_name"`
}

func defaults() *Config {
	return &Config{
		Provider:            "bedrock",
		ModelID:             "amazon.nova-lite-v1:0",
		Region:              "us-east-1",
		MaxTokens:           2048,
		SystemPrompt:        DefaultSystemPrompt,
		MCPURL:              "http://localhost:5001",
		MCPTransport:        "sse",
		ToolServerAddr:      ":5001",
		MailboxDir:          "/tmp/mcp",
		PollIntervalSeconds: 2,
		PollAttempts:        10,
		IdleSleepSeconds:    3,
		DBDriver:            "sqlite",
		DBPath:              "data/kubepilot.sqlite3",
		MinioBucket:         "kubepilot-metrics",
		MetricsCron:         "@hourly",
		AgentName:           "kubepilot",
	}
}

// Load builds the configuration. A non-empty path must name a readable YAML
// file; an empty path skips the file layer. Environment variables win over
// both the file and the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = getEnv("KUBEPILOT_PROVIDER", c.Provider)
	c.ModelID = getEnv("KUBEPILOT_MODEL_ID", c.ModelID)
	c.Region = getEnv("AWS_REGION", c.Region)
	c.MaxTokens = getEnvInt("KUBEPILOT_MAX_TOKENS", c.MaxTokens)
	c.SystemPrompt = getEnv("KUBEPILOT_SYSTEM_PROMPT", c.SystemPrompt)

	c.BedrockToken = getEnv("AWS_BEARER_TOKEN_BEDROCK", c.BedrockToken)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)

	c.MCPURL = getEnv("KUBEPILOT_MCP_URL", c.MCPURL)
	c.MCPTransport = getEnv("KUBEPILOT_MCP_TRANSPORT", c.MCPTransport)
	c.ToolServerAddr = getEnv("KUBEPILOT_TOOLSERVER_ADDR", c.ToolServerAddr)

	c.MailboxDir = getEnv("KUBEPILOT_MAILBOX_DIR", c.MailboxDir)
	c.PollIntervalSeconds = getEnvInt("KUBEPILOT_POLL_INTERVAL_SECONDS", c.PollIntervalSeconds)
	c.PollAttempts = getEnvInt("KUBEPILOT_POLL_ATTEMPTS", c.PollAttempts)
	c.IdleSleepSeconds = getEnvInt("KUBEPILOT_IDLE_SLEEP_SECONDS", c.IdleSleepSeconds)

	c.DBDriver = getEnv("KUBEPILOT_DB_DRIVER", c.DBDriver)
	c.DBPath = getEnv("KUBEPILOT_DB_PATH", c.DBPath)
	c.DBDSN = getEnv("KUBEPILOT_DB_DSN", c.DBDSN)

	c.RedisAddr = getEnv("KUBEPILOT_REDIS_ADDR", c.RedisAddr)
	c.MinioEndpoint = getEnv("KUBEPILOT_MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("KUBEPILOT_MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("KUBEPILOT_MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioBucket = getEnv("KUBEPILOT_MINIO_BUCKET", c.MinioBucket)
	c.MinioUseSSL = getEnvBool("KUBEPILOT_MINIO_USE_SSL", c.MinioUseSSL)
	c.MetricsCron = getEnv("KUBEPILOT_METRICS_CRON", c.MetricsCron)
	c.AgentName = getEnv("KUBEPILOT_AGENT_NAME", c.AgentName)
}

// Validate checks the structural invariants. Credential presence is checked
// where the clients are built, not here.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.Provider) {
	case "bedrock", "anthropic", "local":
	default:
		return fmt.Errorf("provider %q is not supported", c.Provider)
	}
	if strings.TrimSpace(c.ModelID) == "" {
		return errors.New("model_id is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.MCPTransport)) {
	case "sse", "streamable-http", "streamable_http", "http":
	default:
		return fmt.Errorf("mcp_transport %q is not supported", c.MCPTransport)
	}
	if strings.TrimSpace(c.MCPURL) == "" {
		return errors.New("mcp_url is required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	if c.PollIntervalSeconds <= 0 || c.IdleSleepSeconds <= 0 {
		return errors.New("poll_interval_seconds and idle_sleep_seconds must be positive")
	}
	if c.PollAttempts <= 0 {
		return errors.New("poll_attempts must be positive")
	}
	switch strings.TrimSpace(c.DBDriver) {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.DBDSN) == "" {
			return errors.New("db_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("db_driver %q is not supported", c.DBDriver)
	}
	return nil
}

// PollInterval returns the mailbox poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// IdleSleep returns the worker's idle sleep as a duration.
func (c *Config) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
