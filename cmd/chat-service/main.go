// SparkMatch chat service: message writes with idempotency-key
// forwarding, read receipts, blocks and reports.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/events"
	"github.com/sparkmatch/sparkmatch/internal/services/chatsvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("chat-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	pub, err := events.NewAMQPPublisher(cfg.RabbitURL)
	if err != nil {
		log.Warn().Err(err).Msg("event broker unavailable, publishing disabled")
	}

	svc := chatsvc.NewService(auth.NewIssuer(cfg.JWTSecret), dataclient.New(cfg.Services.Data), publisherOrNil(pub))
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func publisherOrNil(pub *events.AMQPPublisher) events.Publisher {
	if pub == nil {
		return nil
	}
	return pub
}
