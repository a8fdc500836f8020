package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ubook/catalog"
	"ubook/config"
	"ubook/core/events"
	"ubook/native/booking"
	"ubook/observability/logging"
	"ubook/rpc"
	"ubook/storage/bookingdb"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	env := os.Getenv("UBOOK_ENV")
	if env == "" {
		env = "development"
	}
	logger := logging.Setup("ubookd", env)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	store, err := bookingdb.Open(filepath.Join(cfg.DataDir, "bookings.db"))
	if err != nil {
		logger.Error("failed to open booking store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	balances, err := cfg.GenesisBalances()
	if err != nil {
		logger.Error("invalid genesis allocation", "error", err)
		os.Exit(1)
	}
	for addr, balance := range balances {
		if err := store.SeedBalance(addr, balance); err != nil {
			logger.Error("failed to seed balance", "address", addr.Hex(), "error", err)
			os.Exit(1)
		}
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		cat, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			logger.Error("failed to load accommodation catalog", "path", cfg.CatalogFile, "error", err)
			os.Exit(1)
		}
	}

	recorder := events.NewRecorder(0)
	engine := booking.NewEngine()
	engine.SetState(store)
	engine.SetOperator(cfg.OperatorAddress())
	engine.SetFeeTreasury(cfg.FeeTreasuryAddress())
	if err := engine.SetPlatformFeeBps(cfg.PlatformFeeBps); err != nil {
		logger.Error("invalid platform fee", "feeBps", cfg.PlatformFeeBps, "error", err)
		os.Exit(1)
	}
	engine.SetEmitter(recorder)

	server := rpc.NewServer(engine, store, cat, recorder, cfg.RPCSecret, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booking node listening",
			"addr", cfg.ListenAddress,
			"network", cfg.NetworkName,
			"chainId", cfg.ChainID,
			"operator", cfg.OperatorAddress().Hex(),
			"feeBps", cfg.PlatformFeeBps,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("booking node stopped")
}
