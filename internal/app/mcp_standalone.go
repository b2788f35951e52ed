package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"composer/internal/config"
)

// ServeMCP runs the composer as a standalone MCP server on stdin/stdout
// with no HTTP server. Destructive tools wait for a decision recorded in the
// workspace database by a running `composer` server.
func ServeMCP(cfg config.Config, log zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, Options{StandaloneMCP: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if _, err := a.Open(ctx, cfg.DocumentID); err != nil {
		return err
	}
	return a.mcp.ServeStdio()
}
