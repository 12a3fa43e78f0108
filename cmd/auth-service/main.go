// SparkMatch auth service: validates Telegram login payloads and issues
// the fabric's access, refresh and admin tokens.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/services/authsvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("auth-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}
	if err := cfg.RequireBotToken(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	svc := authsvc.NewService(cfg)
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
