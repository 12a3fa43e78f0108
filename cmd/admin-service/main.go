// SparkMatch admin service: the moderation panel backend.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/services/adminsvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("admin-service")
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}
	if err := cfg.RequireAdminPassword(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	svc := adminsvc.NewService(auth.NewIssuer(cfg.JWTSecret), cfg.AdminPassword, dataclient.New(cfg.Services.Data))
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
