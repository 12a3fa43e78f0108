// SparkMatch profile service: authenticated pass-through for profile
// CRUD, with the completeness check used during onboarding.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/services/profilesvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("profile-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	svc := profilesvc.NewService(auth.NewIssuer(cfg.JWTSecret), dataclient.New(cfg.Services.Data))
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
