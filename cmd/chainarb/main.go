package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"chainarb/internal/infrastructure/config"
	"chainarb/internal/infrastructure/container"
	"chainarb/internal/infrastructure/logger"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container init failed")
	}
	defer c.Close()

	c.StartSources(ctx)

	log.Info().
		Str("config", *configPath).
		Int("assets", len(cfg.Assets.List)).
		Int("chains", len(cfg.Chains.List)).
		Float64("min_diff_pct", cfg.Arbitrage.MinDiffPct).
		Msg("chainarb started")

	if err := c.Engine().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine exited")
	}
}
