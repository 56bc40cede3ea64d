package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/oscelab/simcore/go/internal/session"
)

// Config holds JetStream publisher settings.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
	PublishWait   time.Duration
}

// DefaultConfig returns the default JetStream publisher configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "EXAM_EVENTS",
		SubjectPrefix: "exam.session",
		MaxAge:        24 * time.Hour,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		PublishWait:   2 * time.Second,
	}
}

// Publisher mirrors session events onto JetStream subjects so external
// consumers (recording, analytics) can follow a session without holding
// a WebSocket. It is a best-effort mirror: publish failures are logged
// and never reach the room.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(ctx context.Context, config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: config}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Simulation session event mirror",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("stream", p.config.StreamName).
		Str("subjects", p.config.SubjectPrefix+".>").
		Msg("JetStream event stream ready")
	return nil
}

// Publish implements session.Broadcaster.
func (p *Publisher) Publish(sessionID string, event *session.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for relay")
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, sanitizeToken(sessionID), event.Type)
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishWait)
	defer cancel()

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Warn().
			Err(err).
			Str("subject", subject).
			Str("event_type", string(event.Type)).
			Msg("failed to relay event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(event.Type)).
		Msg("event relayed")
}

// Close shuts the NATS connection down.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// sanitizeToken keeps session tokens valid as NATS subject tokens.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, s)
}
