package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chorusdev/chorus/internal/config"
	"github.com/chorusdev/chorus/internal/discovery"
	"github.com/chorusdev/chorus/internal/httpapi"
	"github.com/chorusdev/chorus/internal/lockmgr"
	"github.com/chorusdev/chorus/internal/logging"
	"github.com/chorusdev/chorus/internal/metrics"
	"github.com/chorusdev/chorus/internal/ops"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

const idempotencyCacheSize = 4096

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel(), File: cfg.LogFile()})
	log := logging.New("serve")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlite.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	locks := lockmgr.New(db, nil)
	opsManager, err := ops.New(db, idempotencyCacheSize, metrics.OpsAdapter{})
	if err != nil {
		return fmt.Errorf("building operations manager: %w", err)
	}
	finder := discovery.New(db)

	server := httpapi.NewServer(db, locks, opsManager, finder, logging.New("http"), httpapi.Config{
		CORSOrigin: cfg.CORSOrigin(),
	})

	reaperInterval, err := time.ParseDuration(cfg.ReaperInterval())
	if err != nil {
		reaperInterval = 60 * time.Second
	}
	stopReaper := startReaper(ctx, db.Path(), locks, reaperInterval, logging.New("reaper"))
	defer stopReaper()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: httpapi.NewRouter(server),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
	return nil
}
