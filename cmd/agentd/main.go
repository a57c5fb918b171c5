// Command agentd runs the kubernetes agent worker: it discovers the tool
// inventory from the MCP tool server, then answers operator queries arriving
// through the file mailbox until it is told to quit.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"kubepilot/internal/agent"
	"kubepilot/internal/config"
	"kubepilot/internal/conversation"
	"kubepilot/internal/journal"
	"kubepilot/internal/llm"
	"kubepilot/internal/mailbox"
	"kubepilot/internal/mcp"
	"kubepilot/internal/metrics"
	"kubepilot/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to an optional env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("env file %s not loaded: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	engine, err := llm.New(llm.Options{
		Provider:        cfg.Provider,
		Region:          cfg.Region,
		BedrockToken:    cfg.BedrockToken,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		MaxTokens:       cfg.MaxTokens,
	})
	if err != nil {
		log.Fatalf("model client: %v", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Discover the tool inventory before accepting queries.
	mcpClient := mcp.NewClient(cfg.MCPURL, cfg.MCPTransport)
	discoverCtx, discoverCancel := context.WithTimeout(rootCtx, 30*time.Second)
	descs, err := mcpClient.ListTools(discoverCtx)
	discoverCancel()
	if err != nil {
		log.Fatalf("tool discovery against %s: %v", cfg.MCPURL, err)
	}
	registry := tools.NewRegistry()
	if err := registry.Replace(descs); err != nil {
		log.Fatalf("tool registry: %v", err)
	}
	log.Printf("connected to %q, tools: %v", mcpClient.ServerName(), registry.Names())

	session := conversation.NewSession(engine, cfg.ModelID, cfg.SystemPrompt)
	orchestrator := agent.New(session, registry, tools.NewInvoker(mcpClient, nil))

	mb, err := mailbox.New(cfg.MailboxDir, mailbox.Options{
		PollInterval:    cfg.PollInterval(),
		MaxPollAttempts: cfg.PollAttempts,
	})
	if err != nil {
		log.Fatalf("mailbox: %v", err)
	}

	opts := agent.WorkerOptions{IdleSleep: cfg.IdleSleep()}

	var redisRec *metrics.RedisRecorder
	if cfg.RedisAddr != "" {
		redisRec, err = metrics.NewRedisRecorder(cfg.RedisAddr, cfg.AgentName)
		if err != nil {
			log.Fatalf("redis metrics: %v", err)
		}
		defer redisRec.Close()
		opts.Metrics = redisRec
	}

	var cronRunner *cron.Cron
	if cfg.MinioEndpoint != "" && redisRec != nil {
		publisher, err := metrics.NewSchemaPublisher(metrics.SchemaPublisherOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
			Agent:     cfg.AgentName,
		})
		if err != nil {
			log.Fatalf("schema publisher: %v", err)
		}
		cronRunner = cron.New()
		_, err = cronRunner.AddFunc(cfg.MetricsCron, func() {
			ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
			defer cancel()
			summary, err := redisRec.Summary(ctx)
			if err != nil {
				log.Printf("metrics summary: %v", err)
				return
			}
			if err := publisher.Publish(ctx, summary); err != nil {
				log.Printf("publish metric schema: %v", err)
				return
			}
			log.Printf("metric schema published to %s/%s", cfg.MinioBucket, publisher.ObjectName())
		})
		if err != nil {
			log.Fatalf("metrics cron %q: %v", cfg.MetricsCron, err)
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	store, err := journal.Open(journal.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DBDSN,
	})
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer store.Close()
	opts.Journal = store

	worker := agent.NewWorker(mb, orchestrator, opts)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- worker.Run(rootCtx) }()

	log.Printf("agent %s ready, model %s via %s", cfg.AgentName, cfg.ModelID, cfg.Provider)

	select {
	case sig := <-done:
		log.Printf("received %s, shutting down", sig)
		rootCancel()
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("worker: %v", err)
		}
	}
	log.Println("stopped")
}
