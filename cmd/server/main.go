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

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fuomag9/checkpulse/internal/api"
	"github.com/fuomag9/checkpulse/internal/config"
	"github.com/fuomag9/checkpulse/internal/jobs"
	"github.com/fuomag9/checkpulse/internal/logging"
	"github.com/fuomag9/checkpulse/internal/logstore"
	"github.com/fuomag9/checkpulse/internal/monitor"
	"github.com/fuomag9/checkpulse/internal/notification"
	"github.com/fuomag9/checkpulse/internal/store"
	"github.com/fuomag9/checkpulse/internal/websocket"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if err := logging.Setup(cfg.Logging); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize record store
	records, closeStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Type, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Errorf("Failed to close store: %v", err)
		}
	}()

	logs, err := logstore.New(cfg.LogsDir)
	if err != nil {
		log.Fatalf("Failed to open log store: %v", err)
	}

	// Initialize alert dispatcher
	provider, err := notification.NewProvider(cfg.Alerts)
	if err != nil {
		log.Fatalf("Failed to configure %s alerts: %v", cfg.Alerts.Provider, err)
	}
	dispatcher := notification.NewDispatcher(provider, rate.NewLimiter(rate.Limit(cfg.Alerts.Rate), cfg.Alerts.Burst))
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Errorf("Failed to close alert provider: %v", err)
		}
	}()

	// Initialize WebSocket hub
	auth := api.NewAuthenticator(cfg.Auth)
	hub := websocket.NewHub(auth.ValidateToken, cfg.CORSOrigins)
	go hub.Run(ctx)

	// Initialize check executor and job scheduler
	guard := monitor.NewTargetGuard(cfg.Checks.AllowPrivateTargets)
	prober := monitor.NewHTTPProber(monitor.WithDialControl(guard.DialControl))
	executor := monitor.NewExecutor(records, logs, prober, dispatcher,
		monitor.WithBroadcaster(hub),
		monitor.WithTargetGuard(guard),
		monitor.WithWorkers(cfg.Engine.Workers),
	)

	scheduler := jobs.NewScheduler(executor, jobs.NewRotator(logs), cfg.Engine)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Setup API router
	router := api.NewRouter(ctx, cfg, api.Deps{
		Records:   records,
		Logs:      logs,
		Processor: executor,
		Guard:     guard,
		Auth:      auth,
		WebSocket: hub.HandleWebSocket,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Server starting on port %d (%s)", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop(shutdownCtx)
	cancel()

	log.Info("Server exited")
}
