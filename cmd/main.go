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

	"eventreg/cmd/buildCFG"
	"eventreg/internal/api/api"
	"eventreg/internal/apiclient"
	rabbitReader "eventreg/internal/consumerWorker"
	"eventreg/internal/mailer"
	"eventreg/internal/rabbit"
	"eventreg/internal/repo"
	"eventreg/internal/service"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", ".env", "EVENTREG"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	apiCfg, err := buildCFG.BuildAPIConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build API config")
	}
	client := apiclient.New(apiclient.Config{BaseURL: apiCfg.BaseURL, Timeout: apiCfg.Timeout}, &log)
	defer client.Close()

	sessionCfg, err := buildCFG.BuildSessionConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session config")
	}
	store, err := openStore(sessionCfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer store.Close()

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	opts := service.Options{
		CookieMaxAge: serverCfg.CookieMaxAge,
		SecureCookie: serverCfg.SecureCookie,
	}

	var reader *rabbitReader.Reader
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		opts.Notifier = rmq

		mailCfg, err := buildCFG.BuildMailerConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build mailer config")
		}
		m := mailer.New(mailer.Config(mailCfg), &log)
		reader = rabbitReader.NewReader(rmq, m)
		reader.Start(workerCtx)
	}

	serviceInstance, err := service.NewService(client, store, &log, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build service")
	}
	app := api.NewRouters(&api.Routers{Service: serviceInstance, Mode: serverCfg.Mode})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	log.Info().Msg("Shutdown complete")
}

func openStore(cfg buildCFG.SessionConfig, log *zerolog.Logger) (repo.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return repo.NewSQLiteStore(cfg.SQLitePath, log)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return repo.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL, log)
	default:
		return repo.NewMemoryStore(), nil
	}
}
