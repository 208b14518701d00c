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

	"github.com/arkantrust/payment-intents/apikeys"
	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/config"
	"github.com/arkantrust/payment-intents/handlers"
	"github.com/arkantrust/payment-intents/payments"
	"github.com/arkantrust/payment-intents/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("using the development JWT secret, set auth.jwt_secret")
	}

	s, err := store.Open(cfg.Database.Path, store.Options{Timeout: cfg.Database.OpenTimeout})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	policy, err := payments.ParsePolicy(cfg.Provider.Policy)
	if err != nil {
		return err
	}
	provider, err := payments.NewSimulator(payments.SimulatorConfig{
		Policy:         policy,
		FailureCode:    cfg.Provider.FailureCode,
		FailureMessage: cfg.Provider.FailureMessage,
		NodeID:         cfg.Provider.NodeID,
	})
	if err != nil {
		return err
	}

	sink := audit.New(s, logger)
	orch := payments.New(s, provider, sink, logger)
	keys := apikeys.New(s, sink, logger)

	routerCfg := handlers.RouterConfig{
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		Issuer:        cfg.Auth.Issuer,
		AllowedOrigin: cfg.Server.AllowedOrigin,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = &handlers.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handlers.NewRouter(handlers.New(orch, keys, sink, logger), routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "db", cfg.Database.Path, "provider_policy", policy)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
