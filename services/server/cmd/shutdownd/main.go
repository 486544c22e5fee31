package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shutdownd/services/server"
	"shutdownd/services/server/internal/config"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("SHUTDOWND_SETTINGS"), "path to a .toml or .yaml settings file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	srv, err := server.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init server")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("run server")
	}
}
