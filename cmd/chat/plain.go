package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"kubepilot/internal/mailbox"
)

// runPlain is the line-oriented front-end: one query per line, blocking on
// the mailbox until the agent answers or the polling budget runs out.
func runPlain(mb *mailbox.Mailbox) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            color.GreenString("➤ "),
		HistoryFile:       historyFile(),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "bye",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("kubepilot chat (plain) · mailbox %s\n", mb.RequestPath())
	fmt.Println("Type a query. q stops the worker and exits, Ctrl+D exits.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		if mailbox.IsQuit(query) {
			if err := mb.PostQuit(); err != nil {
				return fmt.Errorf("stop worker: %w", err)
			}
			fmt.Println("worker asked to stop")
			return nil
		}

		id, err := mb.Post(query)
		if err != nil {
			color.Red("post failed: %v", err)
			continue
		}
		fmt.Println(color.HiBlackString("waiting for the agent..."))
		answer, err := mb.AwaitResponse(context.Background(), id)
		if err != nil {
			color.Red("await failed: %v", err)
			continue
		}
		fmt.Printf("%s %s\n\n", color.CyanString("agent:"), answer)
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".kubepilot_history")
}
