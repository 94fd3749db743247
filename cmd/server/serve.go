package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/welldanyogia/webrana-crm-mail/internal/api"
	"github.com/welldanyogia/webrana-crm-mail/internal/api/middleware"
	"github.com/welldanyogia/webrana-crm-mail/internal/services"
	"github.com/welldanyogia/webrana-crm-mail/internal/smtp"
	"github.com/welldanyogia/webrana-crm-mail/internal/websocket"
)

const (
	shutdownTimeout      = 15 * time.Second
	limiterCleanupPeriod = 5 * time.Minute
	// tracking endpoints are hit by mail clients loading images in bulk
	trackingRateFactor = 5
)

func newServeCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, the task workers and the sync scheduler",
		Long: `Start the HTTP API together with the background machinery:

  - the task queue workers (sends, syncs, inbound rules)
  - the periodic sync scheduler (SYNC_INTERVAL)
  - the websocket hub pushing new inbound emails
  - the inbound SMTP relay when SMTP_RELAY_ADDR is set`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noScheduler)
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the periodic sync scheduler")
	return cmd
}

func runServe(noScheduler bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.hub.Run(ctx)
	a.queue.Start(ctx)

	scheduler := services.NewSyncScheduler(a.queue, services.SyncSchedulerConfig{Interval: cfg.SyncInterval}, log)
	if !noScheduler {
		scheduler.Start()
	}

	apiLimiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRequests), cfg.RateLimitBurst)
	trackingLimiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRequests*trackingRateFactor), cfg.RateLimitBurst*trackingRateFactor)
	go apiLimiter.RunCleanup(ctx, limiterCleanupPeriod)
	go trackingLimiter.RunCleanup(ctx, limiterCleanupPeriod)

	origins := websocket.ParseOrigins(cfg.AllowedOrigins)
	e := api.NewRouter(&api.RouterConfig{
		DB:              a.db,
		FileStorage:     a.storage,
		Logger:          log,
		Security:        a.security,
		Metrics:         a.metrics,
		Vault:           a.vault,
		Sender:          a.sender,
		Queue:           a.queue,
		Tracker:         a.tracker,
		Hub:             a.hub,
		Upgrader:        websocket.NewSecureUpgrader(origins, log),
		Gmail:           a.gmail(),
		Suggester:       a.suggester(),
		APIKey:          cfg.APIKey,
		AllowedOrigins:  origins,
		Production:      cfg.IsProduction(),
		APILimiter:      apiLimiter,
		TrackingLimiter: trackingLimiter,
		DefaultSMTPHost: cfg.DefaultSMTPHost,
		DefaultSMTPPort: cfg.DefaultSMTPPort,
	})

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		log.Info("HTTP server listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var relay *gosmtp.Server
	if cfg.RelayAddr != "" {
		relayCfg, err := smtp.ServerConfigFrom(cfg)
		if err != nil {
			return err
		}
		backend := smtp.NewBackend(&smtp.BackendConfig{
			Accounts: a.accounts,
			Ingester: a.ingester,
			Secret:   cfg.RelaySecret,
			Logger:   log,
			Security: a.security,
		})
		relay = smtp.NewSecureServer(backend, relayCfg)
		go func() {
			log.Info("SMTP relay listening", slog.String("addr", relay.Addr))
			if err := relay.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				errCh <- fmt.Errorf("smtp relay: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", slog.String("signal", sig.String()))
	case runErr = <-errCh:
		log.Error("Server failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", slog.Any("error", err))
	}
	if relay != nil {
		if err := relay.Shutdown(shutdownCtx); err != nil {
			log.Error("SMTP relay shutdown failed", slog.Any("error", err))
		}
	}
	scheduler.Stop()

	// Cancelling interrupts retry waits so the queue drains promptly
	cancel()
	a.queue.Stop()

	log.Info("Server stopped")
	return runErr
}
