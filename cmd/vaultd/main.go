package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vaultcore/config"
	"vaultcore/core"
	"vaultcore/core/state"
	nativecommon "vaultcore/native/common"
	"vaultcore/observability/logging"
	"vaultcore/observability/otel"
	"vaultcore/rpc"
	"vaultcore/storage"
)

const envVar = "VAULT_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowBackdate := flag.Bool("allow-backdate", false, "DEV ONLY: allow the admin to override the accrual timestamp")
	flag.Parse()

	logger := logging.Setup("vaultd", strings.TrimSpace(os.Getenv(envVar)))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.LogFile) != "" {
		logger = logging.SetupWithFile("vaultd", cfg.Environment, logging.FileOptions{Path: cfg.LogFile})
	}

	if *allowBackdate && cfg.IsProduction() {
		logger.Error("--allow-backdate refused on a production deployment")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "vaultd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.OTLPHeaders),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dataDir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db, core.NodeOptions{
		Pauses:        nativecommon.StaticPauses(cfg.Pauses.Map()),
		AllowBackdate: *allowBackdate,
		Logger:        logger,
	})

	allocs, err := cfg.Allocations()
	if err != nil {
		logger.Error("invalid genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}
	genesisAllocs := make([]state.GenesisAlloc, 0, len(allocs))
	for _, alloc := range allocs {
		genesisAllocs = append(genesisAllocs, state.GenesisAlloc{Address: alloc.Address, Amount: alloc.Amount})
	}
	if _, err := node.ApplyGenesis(genesisAllocs); err != nil {
		logger.Error("failed to apply genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, rpc.ServerOptions{
		RatePerSecond:   cfg.RPC.RatePerSecond,
		RateBurst:       cfg.RPC.RateBurst,
		MaxRequestBytes: cfg.RPC.MaxBodyBytes,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.RPCAddress,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.RPC.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening",
			slog.String("address", cfg.RPCAddress),
			slog.String("environment", cfg.Environment),
			slog.String("authority", node.Authority().String()),
			slog.Bool("allowBackdate", *allowBackdate))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("rpc server failed", slog.Any("error", err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Warn("rpc drain incomplete", slog.Any("error", err))
	}
	if node.Halted() {
		fmt.Fprintln(os.Stderr, "node halted after a failed commit; restart to resume from committed state")
		os.Exit(1)
	}
	logger.Info("vaultd stopped")
}
