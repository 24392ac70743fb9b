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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/backendstub"
	"github.com/teamtrackhq/workload-management/pkg/logger"
)

var stubPort int

var stubServerCmd = &cobra.Command{
	Use:   "stub",
	Short: "Start the reference workload backend",
	Long:  `Start a small system-of-record implementing the backend contract, for local development and integration testing.`,
	Run: func(cmd *cobra.Command, args []string) {
		startStubServer()
	},
}

func init() {
	stubServerCmd.Flags().IntVar(&stubPort, "port", 9090, "port to listen on")
}

func startStubServer() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"), cfg.Observability.Logging.Level)
	lg := logger.L()

	db, err := openStore(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}

	store := backendstub.NewStore(db)
	if cfg.Database.Driver == "sqlite" {
		if err := store.Migrate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to migrate store: %v\n", err)
			os.Exit(1)
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", stubPort),
		Handler: backendstub.NewServer(store, lg).Router(),
	}

	slog.Info("Starting stub backend", "address", server.Addr, "driver", cfg.Database.Driver)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
}

// openStore opens the gorm store. Postgres connectivity is verified with
// a plain sqlx ping first so a bad DSN fails before gorm lazily connects.
func openStore(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		conn, err := sqlx.Connect("pgx", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		return gorm.Open(postgres.New(postgres.Config{Conn: conn.DB}), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(cfg.GetDSN()), &gorm.Config{})
	}
}
