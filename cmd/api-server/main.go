package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver"
	"github.com/guidepath/guidepath/pkg/auth"
	"github.com/guidepath/guidepath/pkg/bootstrap"
	"github.com/guidepath/guidepath/pkg/chat"
	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/eventbus"
	"github.com/guidepath/guidepath/pkg/llm"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	redisclient "github.com/guidepath/guidepath/pkg/store/redis"
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

	st, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	var bus *eventbus.Bus
	opts := []workflow.Option{}
	if len(cfg.Redis.Addresses) > 0 {
		redis, err := redisclient.NewClient(context.Background(), &cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, live events disabled", zap.Error(err))
		} else {
			defer redis.Close()
			bus = eventbus.NewBus(redis.Client())
			opts = append(opts, workflow.WithPublisher(bus))
		}
	}

	files, err := bootstrap.LoadDefinitionFiles(cfg.Workflow, logger)
	if err != nil {
		logger.Fatal("failed to load workflow definitions", zap.Error(err))
	}

	var provider llm.Provider
	if cfg.LLM.APIKey != "" {
		provider = llm.NewClient(cfg.LLM, logger)
	} else {
		logger.Warn("llm api key not set, generated chat responses disabled")
	}

	server := apiserver.NewServer(apiserver.Dependencies{
		Store:    st,
		Services: workflow.NewServices(st, logger, opts...),
		Composer: bootstrap.NewComposer(files, st, logger),
		Files:    files,
		Resolver: chat.NewResolver(provider, cfg.Workflow.MaxBranchHops, logger),
		Tokens:   auth.NewTokenManager(cfg.Auth),
		Bus:      bus,
	}, logger)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     server.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	prometheus.MustRegister(metrics.NewStateCollector(st, logger))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("starting api server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	_ = metricsServer.Shutdown(ctx)
}
