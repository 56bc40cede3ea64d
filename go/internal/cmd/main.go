package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var fileCfg *Config
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load config file")
		}
		fileCfg = cfg
	}

	services, err := setupServices(ctx, fileCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	if services.Relay != nil {
		defer services.Relay.Close()
	}

	go services.ConnectionManager.Start(ctx)

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("simulation session manager listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}
