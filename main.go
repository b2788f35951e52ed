package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	composerApp "composer/internal/app"
	"composer/internal/config"
	"composer/internal/logging"
	"composer/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults to $COMPOSER_CONFIG)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: composer [-config file] [serve|mcp]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logging.ConfigureRuntime()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	switch cmd := flag.Arg(0); cmd {
	case "mcp":
		if err := composerApp.ServeMCP(cfg, log); err != nil {
			log.Fatal().Err(err).Msg("mcp server")
		}
	case "", "serve":
		if err := serve(cfg, log); err != nil {
			log.Fatal().Err(err).Msg("composer")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func serve(cfg config.Config, log zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, "composer")
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	app, err := composerApp.New(ctx, cfg, log, composerApp.Options{})
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		app.Close(context.Background())
		return err
	}

	serveErr := app.Serve(ctx)
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if shutdownTracing != nil {
		if err := shutdownTracing(closeCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown tracing")
		}
	}
	return errors.Join(serveErr, app.Close(closeCtx))
}
