package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/bootstrap"
	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/eventbus"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Storage.Driver == bootstrap.DriverMemory {
		logger.Fatal("outbox relay needs a shared store, memory driver is process local")
	}
	st, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	producer := eventbus.NewKafkaProducer(cfg.Kafka)
	defer producer.Close()

	relay := outbox.NewRelay(st.Outbox(), producer, logger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("outbox relay stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("outbox relay shutting down")
}
