package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/server"
	"github.com/fyrsmithlabs/corpusd/internal/watch"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the corpusd HTTP server",
	Long: `Start the corpusd daemon: HTTP API, metrics endpoint, and the optional
drop-directory watcher.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.NewServer(a.pipeline, a.registry, a.logger, &server.Config{
		Host:             a.config.Server.Host,
		Port:             a.config.Server.Port,
		DefaultPartition: a.config.Ingest.DefaultPartition,
		MaxUploadBytes:   a.config.Ingest.MaxUploadBytes(),
	})
	if err != nil {
		return err
	}

	if a.config.Watch.Enabled {
		watcher, err := watch.NewWatcher(a.pipeline, watch.Config{
			Dir:       a.config.Watch.Dir,
			Partition: a.config.Watch.Partition,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
