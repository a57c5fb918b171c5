// Command toolserver serves the kubernetes diagnostic tools over MCP. The
// agent discovers and calls them through internal/mcp.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kubepilot/internal/config"
	"kubepilot/internal/k8stools"
	"kubepilot/internal/mcpserver"
)

const serverVersion = "0.1.0"

func main() {
	addrFlag := flag.String("addr", "", "listen address, overrides the config value")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	addr := cfg.ToolServerAddr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	srv := mcpserver.New("kubepilot-tools", serverVersion)
	if err := k8stools.New(nil).RegisterAll(srv); err != nil {
		log.Fatalf("register tools: %v", err)
	}
	log.Printf("serving tools: %v", srv.ToolNames())

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams need unlimited write timeout
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("mcp tool server listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
