package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curvewatch/curvewatch/internal/backoff"
	"github.com/curvewatch/curvewatch/internal/blockcache"
	"github.com/curvewatch/curvewatch/internal/bus"
	"github.com/curvewatch/curvewatch/internal/chain"
	"github.com/curvewatch/curvewatch/internal/config"
	"github.com/curvewatch/curvewatch/internal/dispatch"
	"github.com/curvewatch/curvewatch/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	wsURL := flag.String("ws", "", "websocket RPC endpoint URL")
	brokers := flag.String("brokers", "", "comma-separated bus broker addresses")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath, *wsURL, *brokers)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("monitor exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Topic setup is best-effort: the monitor keeps observing even when
	// the bus is unreachable at startup.
	if topics, err := bus.NewTopicManager(cfg.Broker.Addresses); err != nil {
		logger.Warn("topic manager unavailable", "error", err)
	} else {
		if err := topics.EnsureTopics(ctx, bus.DefaultTopicConfigs()); err != nil {
			logger.Warn("ensure topics failed", "error", err)
		}
		topics.Close()
	}

	publisher, err := bus.NewKafkaPublisher(cfg.Broker.Addresses)
	if err != nil {
		return err
	}
	defer publisher.Close()

	manager := chain.NewManager(chain.ManagerConfig{
		URL:            cfg.Chain.WSURL,
		ProbeInterval:  cfg.Chain.ProbeInterval,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		MaxReconnects:  cfg.Chain.MaxReconnects,
		ReconnectDelay: cfg.Chain.ReconnectDelay,
		Logger:         logger,
	})
	defer manager.Disconnect()

	cache := blockcache.New(manager, blockcache.Config{
		Capacity:   cfg.Cache.Capacity,
		MaxRetries: cfg.Cache.MaxRetries,
		Retry:      backoff.Policy{Base: cfg.Cache.RetryBase, Max: cfg.Cache.RetryMax},
		Logger:     logger,
	})
	defer cache.Clear()

	// Auxiliary calls target the newest manager generation.
	auxManager := cfg.Contracts.ManagerV2
	if auxManager == "" {
		auxManager = cfg.Contracts.ManagerV1
	}
	caller, err := chain.NewCaller(manager, common.HexToAddress(auxManager))
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(dispatch.Config{
		Cache:     cache,
		Caller:    caller,
		Publisher: publisher,
		Logger:    logger,
	})

	r, err := router.New(manager, dispatcher, router.Config{
		ManagerV1: common.HexToAddress(cfg.Contracts.ManagerV1),
		ManagerV2: common.HexToAddress(cfg.Contracts.ManagerV2),
		Pairs:     cfg.PairAddresses(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	go func() { _ = r.Run(ctx) }()

	if err := manager.Connect(ctx); err != nil {
		return err
	}

	logger.Info("monitor running",
		"endpoint", cfg.Chain.WSURL,
		"filters", r.FilterCount(),
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		return nil
	case err := <-manager.Fatal():
		return err
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
