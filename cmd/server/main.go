package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FabienLariviere/trading-simulation/params"
	"github.com/FabienLariviere/trading-simulation/pkg/api"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/engine"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/object"
	"github.com/FabienLariviere/trading-simulation/pkg/storage"
	"github.com/FabienLariviere/trading-simulation/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Server.LogFile)

	// ---- Record store ----
	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()
	sugar.Infow("storage_opened", "path", cfg.Storage.DBPath)

	// ---- Exchange core ----
	clock := util.RealClock{}
	accounts := account.NewManager(store, clock, sugar)
	registry, err := object.NewRegistry(store, store, clock, sugar)
	if err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}
	eng := engine.New(accounts, store, registry, store, clock, sugar)

	// ---- API server ----
	server := api.NewServer(eng, accounts, registry, store, cfg.Trading.DefaultFee, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.HTTPServer(cfg.Server.APIAddr)
	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.Server.APIAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		sugar.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("shutdown_failed", "err", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}
}
