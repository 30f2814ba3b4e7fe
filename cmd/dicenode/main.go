package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"dicesettle/internal/config"
	"dicesettle/internal/crypto"
	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/node"
	"dicesettle/internal/runtime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.NewLogger()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Node exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	house, err := crypto.LoadKeypairFile(cfg.HouseKeypair)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	broadcaster := events.NewBroadcaster(256)
	publishers := events.Fanout{broadcaster}
	if cfg.NATSURL != "" {
		js, err := events.NewNATSPublisher(cfg.NATSConfig())
		if err != nil {
			return err
		}
		publishers = append(publishers, js)
		logger.WithField("url", cfg.NATSURL).Info("Publishing events to NATS")
	}
	if cfg.RedisURL != "" {
		rp, err := events.NewRedisPublisher(ctx, cfg.RedisConfig())
		if err != nil {
			return err
		}
		publishers = append(publishers, rp)
		logger.WithField("stream", events.RedisStream).Info("Publishing events to Redis")
	}
	defer publishers.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	executor := runtime.NewExecutor(store, []runtime.Program{dice.NewProgram()},
		runtime.WithLogger(logger),
		runtime.WithMetrics(runtime.NewMetrics(registry)),
		runtime.WithPublisher(publishers),
	)

	n, err := node.New(executor, broadcaster, node.Options{
		ListenAddr:       cfg.ListenAddr,
		RequestTimeout:   cfg.RequestTimeout,
		MinClientVersion: cfg.MinClientVersion,
		FaucetLamports:   cfg.FaucetLamports,
		House:            house.PublicKey(),
		Logger:           logger,
		Registerer:       registry,
		Gatherer:         registry,
	})
	if err != nil {
		return err
	}

	if err := n.Start(ctx); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"house":   house.PublicKey(),
		"backend": store.Backend(),
	}).Info("Settlement node started")

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return n.Stop(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (ledger.Store, error) {
	switch {
	case cfg.UsesPostgres():
		return ledger.NewPostgresStore(ctx, cfg.PostgresConfig(), logger)
	case cfg.LedgerPath != "":
		return ledger.OpenLevelDBStore(cfg.LedgerPath)
	default:
		logger.Warn("No ledger storage configured, state is kept in memory")
		return ledger.NewMemoryStore(), nil
	}
}
