// Package main provides the Wavelength game server. It accepts framed TCP
// connections, manages game lobbies and rounds, and relays play to every
// connected client.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wavelength/internal/config"
	"github.com/cory-johannsen/wavelength/internal/game"
	"github.com/cory-johannsen/wavelength/internal/observability"
	"github.com/cory-johannsen/wavelength/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting Wavelength server",
		zap.String("listen_addr", cfg.Listen.Addr()),
		zap.Int("win_threshold", cfg.Game.WinThreshold),
	)

	// Load card decks
	pairs := game.DefaultPairs()
	if cfg.Game.DecksDir != "" {
		pairs, err = game.LoadPairs(cfg.Game.DecksDir)
		if err != nil {
			logger.Fatal("loading decks", zap.Error(err))
		}
	}
	logger.Info("decks loaded", zap.Int("pairs", len(pairs)))

	// Build services
	registry := game.NewRegistry(pairs, game.NewRandSource(), cfg.Game.WinThreshold)
	directory := server.NewDirectory(logger)
	handler := server.NewHandler(registry, directory, logger)
	acceptor := server.NewAcceptor(cfg.Listen, handler, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("game", &server.FuncService{
		StartFn: func() error {
			return acceptor.ListenAndServe()
		},
		StopFn: func() {
			acceptor.Stop()
		},
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("listen_addr", cfg.Listen.Addr()),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
