// Command chat is the operator front-end for the kubernetes agent. It posts
// queries into the file mailbox that agentd polls and waits for each answer.
// The default interface is a full-screen TUI; -plain switches to a readline
// REPL for dumb terminals and scripting.
package main

import (
	"flag"
	"log"

	"kubepilot/internal/config"
	"kubepilot/internal/mailbox"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dir := flag.String("dir", "", "mailbox directory (overrides config)")
	plain := flag.Bool("plain", false, "line-oriented REPL instead of the TUI")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dir != "" {
		cfg.MailboxDir = *dir
	}

	mb, err := mailbox.New(cfg.MailboxDir, mailbox.Options{
		PollInterval:    cfg.PollInterval(),
		MaxPollAttempts: cfg.PollAttempts,
	})
	if err != nil {
		log.Fatalf("mailbox: %v", err)
	}

	if *plain {
		if err := runPlain(mb); err != nil {
			log.Fatalf("chat: %v", err)
		}
		return
	}
	if err := runTUI(mb); err != nil {
		log.Fatalf("chat: %v", err)
	}
}
