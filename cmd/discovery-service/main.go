// SparkMatch discovery service: swipes and matches, publishing
// match.created after the data store commits.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/events"
	"github.com/sparkmatch/sparkmatch/internal/services/discoverysvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("discovery-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	pub, err := events.NewAMQPPublisher(cfg.RabbitURL)
	if err != nil {
		// Event publishing degrades to logging; the write path stays up.
		log.Warn().Err(err).Msg("event broker unavailable, publishing disabled")
	}

	svc := discoverysvc.NewService(auth.NewIssuer(cfg.JWTSecret), dataclient.New(cfg.Services.Data), publisherOrNil(pub))
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// publisherOrNil keeps a typed-nil *AMQPPublisher out of the interface.
func publisherOrNil(pub *events.AMQPPublisher) events.Publisher {
	if pub == nil {
		return nil
	}
	return pub
}
