package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"infrafi/chain"
	"infrafi/gateway/middleware"
	"infrafi/observability/logging"
	telemetry "infrafi/observability/otel"
	"infrafi/services/dashboardd/config"
	"infrafi/services/dashboardd/server"
	"infrafi/storage"
	"infrafi/subgraph"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/dashboardd/config.yaml", "path to dashboardd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("INFRAFI_ENV"))
	logger, logCloser := logging.Configure(logging.Options{
		Service: "dashboardd",
		Env:     env,
		Level:   cfg.Log.Level,
		File: &logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("dashboardd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("load protocol params: %v", err)
	}

	indexer, err := subgraph.NewClient(subgraph.Config{
		Endpoint:          cfg.Subgraph.Endpoint,
		Timeout:           cfg.Subgraph.Timeout,
		RequestsPerSecond: cfg.Subgraph.RequestsPerSecond,
		Burst:             cfg.Subgraph.Burst,
		PageSize:          cfg.Subgraph.PageSize,
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("configure subgraph client: %v", err)
	}
	logger.Info("subgraph configured", logging.URLField("endpoint", cfg.Subgraph.Endpoint))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvCfg := server.Config{
		Indexer: indexer,
		Params:  params,
		CORS:    middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		PollInterval: cfg.PollInterval,
		Retention:    cfg.Storage.Retention,
		CacheTTL:     cfg.Storage.CacheTTL,
		Logger:       logger,
	}

	if cfg.Chain.Enabled() {
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			log.Fatalf("dial evm endpoint: %v", err)
		}
		defer client.Close()
		reader, err := chain.NewReader(client, chain.Config{
			VaultAddress:        cfg.Chain.Vault,
			TokenAddress:        cfg.Chain.Token,
			NodeRegistryAddress: cfg.Chain.NodeRegistry,
			Params:              params,
			CallTimeout:         cfg.Chain.CallTimeout,
			Logger:              logger,
		})
		if err != nil {
			log.Fatalf("configure contract reader: %v", err)
		}
		srvCfg.Reader = reader
		logger.Info("chain reader configured", logging.URLField("rpc_url", cfg.Chain.RPCURL), slog.String("vault", reader.VaultAddress().Hex()))
	}

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("open stats store: %v", err)
	}
	defer store.Close()
	srvCfg.Store = store

	srvCfg.Cache = storage.NewMemCache(cfg.Storage.CacheEntries)
	if cfg.Storage.CacheDir != "" {
		cache, err := storage.OpenLevelCache(cfg.Storage.CacheDir, cfg.Storage.CacheEntries)
		if err != nil {
			log.Fatalf("open response cache: %v", err)
		}
		defer cache.Close()
		srvCfg.Cache = cache
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("configure server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error("stats poller stopped", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("dashboardd listening", "addr", cfg.ListenAddress, "tls", cfg.TLS.Enabled())
		if cfg.TLS.Enabled() {
			serverErr <- httpServer.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dashboardd server error", "error", err)
			os.Exit(1)
		}
	}
}
