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
	redisclient "github.com/guidepath/guidepath/pkg/store/redis"
	"github.com/guidepath/guidepath/pkg/sweeper"
	"github.com/guidepath/guidepath/pkg/workflow"
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
		logger.Fatal("sweeper needs a shared store, memory driver is process local")
	}
	st, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	opts := []workflow.Option{}
	if len(cfg.Redis.Addresses) > 0 {
		redis, err := redisclient.NewClient(context.Background(), &cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, live events disabled", zap.Error(err))
		} else {
			defer redis.Close()
			opts = append(opts, workflow.WithPublisher(eventbus.NewBus(redis.Client())))
		}
	}

	services := workflow.NewServices(st, logger, opts...)
	svc := sweeper.New(services.Steps, services.Skips, cfg.Sweeper.Schedule, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("sweeper stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("sweeper shutting down")
}
