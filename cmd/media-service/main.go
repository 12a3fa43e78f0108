// SparkMatch media service: photo upload, retrieval and deletion with
// content screening and the strict audit trail.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/services/mediasvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("media-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	svc := mediasvc.NewService(auth.NewIssuer(cfg.JWTSecret), mediasvc.AcceptAll())
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
