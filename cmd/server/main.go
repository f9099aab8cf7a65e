package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/founderfund/waitlist/internal/api"
	"github.com/founderfund/waitlist/internal/config"
	"github.com/founderfund/waitlist/internal/membersync"
	"github.com/founderfund/waitlist/internal/pkg/logger"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/stats"
	"github.com/founderfund/waitlist/internal/service/status"
	"github.com/founderfund/waitlist/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(!cfg.Log.ShowPII)
	log := logger.Default()

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		return fmt.Errorf("pre-flight check: %w", err)
	}

	ctx := context.Background()

	// One store handle for the whole process.
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()
	log.Info("storage ready", "driver", store.Name())

	syncer := membersync.New(cfg.Mailchimp)
	if cfg.Mailchimp.Enabled() {
		log.Info("member sync enabled", "provider", "mailchimp", "audience_id", cfg.Mailchimp.AudienceID)
	} else {
		log.Info("member sync disabled (MAILCHIMP_API_KEY, MAILCHIMP_SERVER_PREFIX or MAILCHIMP_AUDIENCE_ID not set)")
	}

	signups := signup.NewService(store, syncer, signup.Options{
		SyncTimeout:   cfg.Registration.SyncTimeout(),
		CommitTimeout: cfg.Registration.CommitTimeout(),
		StoreTimeout:  cfg.Registration.StoreTimeout(),
		Logger:        log,
	})
	storeTimeout := cfg.Registration.StoreTimeout()
	handlers := api.NewHandlers(signups,
		stats.NewService(store, storeTimeout),
		status.NewService(store).WithTimeout(storeTimeout),
		log,
	)
	health := api.NewHealthChecker(store, syncer, log)
	server := api.NewServer(cfg.Server, handlers, health, cfg.CORS)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case sig := <-done:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("server stopped")
	return nil
}
