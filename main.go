package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/duelgrid/tictactoe/api"
	"github.com/duelgrid/tictactoe/session"
)

var (
	addr     = pflag.String("addr", ":8001", "listen address")
	logLevel = pflag.String("log-level", "info", "minimum log level (trace, debug, info, warn, error)")
)

func main() {
	pflag.Parse()
	InitializeLogger(*logLevel)

	registry := session.NewRegistry()
	coordinator := session.NewCoordinator(registry)

	log.Info().Msg("Starting App")
	if err := api.StartAPI(*addr, coordinator, registry); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func InitializeLogger(level string) {
	loggingEnabled := os.Getenv("LOGGING")
	if loggingEnabled != "true" {
		log.Logger = log.Output(os.Stdout)
	} else {
		runLogFile, err := os.OpenFile(
			"myapp.log",
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0664,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open log file")
		}
		multi := zerolog.MultiLevelWriter(runLogFile, os.Stdout)
		log.Logger = zerolog.New(multi).With().Timestamp().Logger()
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, defaulting to info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
