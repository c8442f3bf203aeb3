package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"paygate/internal/bootstrap"
	"paygate/internal/config"
	httpx "paygate/internal/http"
)

func main() {
	cfg := config.Load()
	config.ConfigureLogging(cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.New(ctx, cfg, true)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer rt.Close()

	if cfg.App.APIKey == "" {
		log.Warn().Msg("app.api_key is empty; every /api/v1 request will be rejected")
	}

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:      cfg,
		Registry:    rt.Registry,
		Processor:   rt.Processor,
		Idempotency: rt.Idempotency,
		Metrics:     rt.Metrics,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // gateway calls retry with backoff
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("env", cfg.App.Env).Msgf("PayGate API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
