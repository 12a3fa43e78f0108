// SparkMatch API gateway: the single public entry point. Routes and
// rewrites versioned paths onto the internal services, redirects legacy
// paths, and enforces the CORS policy for the web app origin.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/gateway"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("api-gateway")
	g := gateway.New(cfg)
	if err := server.Run(cfg, g.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
