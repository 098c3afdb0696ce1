package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/veridian-systems/rowguard/internal/handlers"
	"github.com/veridian-systems/rowguard/internal/server"
	"github.com/veridian-systems/rowguard/internal/trigger"
)

var migrationsPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rowguard service",
	Long: `Start the HTTP API and, when enabled, the NATS trigger subscription.
Each artifact-available event or POST /api/v1/runs request produces one
synchronous evaluation run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsPath, "migrations", "migrations", "path to database migrations")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sources.Rules.Type == "postgres" {
		if err := runMigrations(); err != nil {
			return err
		}
	}

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	if cfg.NATS.Enabled {
		trig, err := trigger.NewNATSTrigger(cfg.NATS, d.coordinator, logger)
		if err != nil {
			return err
		}
		defer trig.Close()
		if err := trig.Start(ctx); err != nil {
			return err
		}
	}

	handler := handlers.New(d.coordinator, d.state, d.pinger, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrations() error {
	logger.Info("running database migrations", "path", migrationsPath)
	m, err := migrate.New("file://"+migrationsPath, cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
