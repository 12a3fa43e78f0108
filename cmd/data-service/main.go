// SparkMatch data service: the single owner of persistent state,
// serving only internal traffic.
package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/services/datasvc"
	"github.com/sparkmatch/sparkmatch/pkg/server"
)

func main() {
	cfg := config.Load("data-service")
	svc := datasvc.NewService()
	if err := server.Run(cfg, svc.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
