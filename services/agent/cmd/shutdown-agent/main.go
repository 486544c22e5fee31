package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"shutdownd/services/agent"
)

func main() {
	configPath := flag.String("config", agent.ConfigPath, "path to agent settings file (.toml or .yaml)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "shutdown-agent").Logger()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load settings")
	}

	svc := agent.NewService(cfg, nil, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := agent.RunPlatform(ctx, svc); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("agent exited with error")
		os.Exit(2)
	}
}
