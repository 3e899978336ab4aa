// Package main implements the tamper gate orchestrator. The gate owns
// the arming state machine, reads sensor events from a named pipe, and
// escalates suspected tamper through a password challenge toward an
// irrevocable wipe authorization.
//
// SECURITY: the gate runs with elevated privilege but a narrow write
// surface (the trigger file). The sensor daemon writes the FIFO and has
// zero access to the wipe machinery.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obsidianworks/tampergate/gate/audit"
)

// Version is set at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", DefaultConfigPath, "Path to configuration file")
	fifoPath := flag.String("fifo", "", "Event FIFO path (overrides config)")
	challengeBinary := flag.String("challenge-binary", "", "Challenge verifier path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *fifoPath != "" {
		cfg.EventFIFO = *fifoPath
	}
	if *challengeBinary != "" {
		cfg.ChallengeBinary = *challengeBinary
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("version", Version).
		Str("config", *configPath).
		Str("fifo", cfg.EventFIFO).
		Msg("Tamper gate starting")

	var trail *audit.Trail
	if cfg.AuditDB != "" {
		trail, err = audit.Open(cfg.AuditDB)
		if err != nil {
			// The trail is an investigative aid, not a gate on the
			// tamper response. Run without it rather than not at all.
			log.Error().Err(err).Msg("Failed to open audit trail, continuing without it")
		} else {
			defer trail.Close()
		}
	}

	gate := NewGate(cfg, trail)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	err = gate.Run(ctx)
	switch {
	case errors.Is(err, errWipeAuthorized):
		log.Error().Msg("Wipe authorized, gate exiting")
		os.Exit(2)
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Tamper gate shutdown complete")
	case err != nil:
		log.Fatal().Err(err).Msg("Tamper gate error")
	}
}
