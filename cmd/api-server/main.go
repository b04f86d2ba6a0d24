package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"modelhub/internal/api"
	"modelhub/internal/app"
	"modelhub/internal/logging"
	"modelhub/internal/stream"
	"modelhub/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}

	a, err := app.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("bootstrap")
	}
	defer a.Close()

	if cfg.Logging.Level != "debug" && cfg.Logging.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := stream.NewHub()
	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(a.Agg, cfg.Aggregate.DefaultPageSize, cfg.Aggregate.MaxPageSize),
		DB:             a.DB,
		TrustedProxies: cfg.Server.TrustedProxies,
		Stream:         stream.WSHandler(a.Agg, hub, cfg.Server.WSOriginCheck),
		StreamClients:  hub.Count,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", cfg.Server.HTTPAddr).Strs("sources", a.Agg.SourceNames()).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		logging.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.CloseAll()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown error")
	}
	logging.Info().Msg("server stopped")
}
