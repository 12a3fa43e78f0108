// SparkMatch notification service: consumes match.created and
// message.sent from the event bus and pushes through the messenger.
package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/services/notificationsvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("notification-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	svc := notificationsvc.NewService(auth.NewIssuer(cfg.JWTSecret), cfg.MessengerURL)
	consumer := func(ctx context.Context) error {
		return svc.Run(ctx, cfg.RabbitURL)
	}
	if err := server.Run(cfg, svc.Handler(), consumer); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
