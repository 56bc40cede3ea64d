package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/oscelab/simcore/go/internal/gateway"
	"github.com/oscelab/simcore/go/internal/relay"
	"github.com/oscelab/simcore/go/internal/session"
	"github.com/oscelab/simcore/go/internal/station"
)

// Services wires the dependency chain: catalog -> registry -> gateway,
// with the optional NATS relay mirroring every broadcast.
type Services struct {
	ConnectionManager *gateway.ConnectionManager
	Registry          *session.Registry
	WSHandler         *gateway.Handler
	SessionHandler    *gateway.SessionHandler
	Relay             *relay.Publisher
}

func setupServices(ctx context.Context, fileCfg *Config) (*Services, error) {
	catalog, err := setupCatalog(ctx, fileCfg)
	if err != nil {
		return nil, fmt.Errorf("setup station catalog: %w", err)
	}

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	var sink session.EventSink = cm
	var relayPublisher *relay.Publisher
	if url := getEnv("NATS_URL", ""); url != "" {
		relayCfg := relay.DefaultConfig()
		relayCfg.URL = url
		relayPublisher, err = relay.NewPublisher(ctx, relayCfg)
		if err != nil {
			return nil, fmt.Errorf("setup event relay: %w", err)
		}
		sink = &session.FanoutSink{Primary: cm, Mirrors: []session.Broadcaster{relayPublisher}}
		log.Info().Str("nats_url", url).Msg("event relay enabled")
	}

	registry := session.NewRegistry(clockwork.NewRealClock(), sessionConfig(fileCfg), sink)

	return &Services{
		ConnectionManager: cm,
		Registry:          registry,
		WSHandler:         gateway.NewHandler(registry, cm),
		SessionHandler:    gateway.NewSessionHandler(registry, catalog),
		Relay:             relayPublisher,
	}, nil
}

// setupCatalog prefers the Postgres content database and falls back to
// the YAML fixture so the service runs standalone in development.
func setupCatalog(ctx context.Context, fileCfg *Config) (station.Repository, error) {
	if getEnv("DB_HOST", "") != "" {
		pool, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		return station.NewPostgresRepository(pool), nil
	}

	fixture := getEnv("STATION_FIXTURE", "")
	if fixture == "" && fileCfg != nil {
		fixture = fileCfg.StationFixture
	}
	if fixture == "" {
		fixture = "stations.yaml"
	}
	repo, err := station.LoadFixtureRepository(fixture)
	if err != nil {
		return nil, err
	}
	log.Info().Str("fixture", fixture).Msg("station catalog loaded from fixture")
	return repo, nil
}
