package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/allocation"
	"github.com/teamtrackhq/workload-management/internal/analytics"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/gateway"
	"github.com/teamtrackhq/workload-management/internal/transport/rest"
	"github.com/teamtrackhq/workload-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dashboard API server",
	Long:  `Start the HTTP server exposing capacity, allocation and analytics operations to the dashboard.`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	Backend *gateway.Client
	Router  *chi.Mux
	Logger  *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr, "backend", deps.Config.Backend.BaseURL)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	lg := logger.L()

	backend := gateway.NewClient(gateway.Config{
		BaseURL:        config.Backend.BaseURL,
		APIKey:         config.Backend.APIKey,
		RequestTimeout: config.Backend.RequestTimeout,
		ReadRetries:    config.Backend.ReadRetries,
	}, lg)

	provider := capacity.NewProvider(backend, config.Cache.SnapshotTTL, config.Cache.MaxEntries, lg)
	validator := capacity.NewValidator(capacity.Thresholds{
		Warning: config.Validator.WarningThreshold,
		HardCap: config.Validator.HardCap,
	})

	analyticsService := analytics.NewService(backend, config.Cache.RollupTTL, analytics.DefaultTopN, lg)
	allocationService := allocation.NewService(backend, provider, validator, analyticsService, config.Cache.SnapshotTTL, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router,
		backend,
		capacity.NewHandler(provider, validator),
		allocation.NewHandler(allocationService),
		analytics.NewHandler(analyticsService),
		config.Server.AllowedOrigins,
		lg)

	return &Dependencies{
		Config:  config,
		Backend: backend,
		Router:  router,
		Logger:  lg,
	}, nil
}
