package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/gateway"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(logLevel())

	cfg, err := loadConfig(getEnv("VIDSYNC_CONFIG", "config.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("config file not loaded, using defaults")
		cfg = defaultFileConfig()
	}

	svcConfig := gateway.DefaultConfig()
	svcConfig.ConnectionConfig.PingInterval = cfg.Server.PingInterval
	svcConfig.ConnectionConfig.ReadTimeout = cfg.Server.ReadTimeout
	svcConfig.ConnectionConfig.WriteTimeout = cfg.Server.WriteTimeout

	if natsURL := getEnv("NATS_URL", cfg.Bridge.URL); natsURL != "" {
		svcConfig.EnableBridge = true
		svcConfig.BridgeConfig.URL = natsURL
	}

	svc, err := gateway.NewService(svcConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}
	defer svc.Stop()

	port := getEnv("PORT", cfg.Server.Port)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     svc.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Bool("bridge", svcConfig.EnableBridge).Msg("sync gateway starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("sync gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logLevel() zerolog.Level {
	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
