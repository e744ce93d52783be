package main

import (
	"context"
	"log"
	"os"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/store"
	"github.com/answerforge/answerforge/internal/tools"
	"github.com/answerforge/answerforge/provider"
)

// toolsrv is the standalone tool server the gateway spawns by default.
// It speaks newline-delimited JSON on stdin/stdout, so all logging goes
// to stderr.
func main() {
	log.SetOutput(os.Stderr)
	cfg := config.LoadConfig(os.Getenv("ANSWERFORGE_CONFIG"))
	ctx := context.Background()

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	llm, err := provider.New(cfg.LLM)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	registry := tools.NewRegistry(st, llm)
	if err := tools.NewServer(registry, os.Stdin, os.Stdout).Serve(ctx); err != nil {
		log.Fatalf("tool server: %v", err)
	}
}
