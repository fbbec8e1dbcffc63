package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/events"
	"fairdice-backend/internal/fairness"
	"fairdice-backend/internal/handlers"
	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/scheduler"
	"fairdice-backend/internal/services"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, limiter, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := fairness.Lookup(cfg.Game.HashAlgorithm)
	if err != nil {
		return err
	}

	hub := handlers.NewWebSocketHub()
	defer hub.Close()

	broadcasters := []services.Broadcaster{hub}
	if cfg.NATS.URL != "" {
		emitter, err := events.NewEmitter(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		defer emitter.Close()
		broadcasters = append(broadcasters, emitter)
		logger.L().Info("Publishing events to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	broadcaster := services.NewMultiBroadcaster(broadcasters...)

	seeds := services.NewSeedManager(store, hasher, cfg.Game.ServerSeedBytes, broadcaster)
	house := services.NewHouseService(store, cfg.Game.RevenueShare, broadcaster)
	engine := services.NewDiceEngine(store, seeds, house, cfg.Game, broadcaster)

	cronService, err := scheduler.SetupCron(house)
	if err != nil {
		return err
	}
	defer cronService.Stop()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.Deps{
		Config:     cfg,
		Users:      services.NewUserService(store),
		Seeds:      seeds,
		Engine:     engine,
		House:      house,
		JWT:        services.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		Limiter:    limiter,
		WebSockets: handlers.NewWebSocketHandler(hub, seeds),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("Server starting", "port", cfg.Port, "store", cfg.Store.Driver, "hash", hasher.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case sig := <-stop:
		logger.L().Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.L().Info("Server stopped")
	return nil
}
