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

	"github.com/warp/club-ledger/api"
	"github.com/warp/club-ledger/logger"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.HTTPPort = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (default $HTTP_PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.ValidateServer(); err != nil {
		return err
	}
	log := logger.WithComponent("server")

	svc, store, err := a.openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(svc, logger.WithComponent("api"))
	monitor := api.NewDriftMonitor(svc, logger.WithComponent("drift"))
	monitor.CheckInterval = a.cfg.BalanceCheckInterval
	monitor.Enabled = a.cfg.BalanceCheckInterval > 0
	monitor.Start()
	defer monitor.Stop()

	router := api.NewRouter(handler, api.NewAuthenticator(a.cfg.JWTSecret), monitor, a.cfg.CORSOrigins)

	server := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("database", a.cfg.DatabasePath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
