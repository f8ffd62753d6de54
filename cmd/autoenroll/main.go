package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoenroll/internal/api"
	"autoenroll/internal/config"
	"autoenroll/internal/debounce"
	"autoenroll/internal/dispatch"
	"autoenroll/internal/enroll"
	"autoenroll/internal/history"
	"autoenroll/internal/ingest"
	"autoenroll/internal/logging"
	"autoenroll/internal/stats"
	"autoenroll/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "autoenroll.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("autoenroll starting", "version", version, "config", configPath)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := store.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
	}

	statsStore := stats.NewStore(cfg.Stats.StoreLimit)
	historyStore := history.NewStore(cfg.History.StoreLimit)

	cache := debounce.NewCache(cfg.Pipeline.HardCacheExpiration)
	debouncer := debounce.NewDebouncer(cache, logging.Component(logger, "debounce"))
	enroller := enroll.NewClient(manager, logging.Component(logger, "enroll"))

	dispatcher := dispatch.NewDispatcher(
		manager,
		enroller,
		debouncer,
		statsStore,
		historyStore,
		store,
		logging.Component(logger, "dispatch"),
	)
	dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingest.StartKafka(ctx, manager, dispatcher.Submit, logging.Component(logger, "kafka"))
	ingest.StartREST(ctx, manager, dispatcher.Submit, logging.Component(logger, "rest"))
	api.Start(ctx, manager, statsStore, historyStore, dispatcher, logging.Component(logger, "api"), version)

	watchStop := make(chan struct{})
	go manager.Watch(3*time.Second,
		func(*config.Config) { logger.Info("configuration reloaded") },
		func(err error) { logger.Warn("configuration reload failed", "err", err) },
		watchStop,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	close(watchStop)
	cancel()
	dispatcher.Stop()
	logger.Info("autoenroll stopped")
	return nil
}
