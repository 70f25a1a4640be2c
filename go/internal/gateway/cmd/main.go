package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/gateway"
	"github.com/metagame/metagame/go/internal/outbox"
	"github.com/metagame/metagame/go/internal/timers"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("GATEWAY_PORT", "8081")
	apiURL := getEnv("TIMER_API_URL", "http://localhost:8080")

	natsCfg := outbox.DefaultJetStreamConfig()
	natsCfg.URL = getEnv("NATS_URL", natsCfg.URL)

	hostname, _ := os.Hostname()
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.ConsumerName = getEnv("GATEWAY_CONSUMER", "timer-gateway-"+hostname)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nc, err := outbox.Connect(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	// The relay normally creates the stream; do it here too so start order does not matter
	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}
	if err := outbox.EnsureStream(ctx, js, natsCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure stream")
	}

	clock := clockwork.NewRealClock()
	provider := gateway.NewRemoteStateProvider(timers.NewClient(&http.Client{Timeout: 5 * time.Second}, apiURL))

	gatewayService, err := gateway.NewService(ctx, gatewayCfg, nc, provider, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			http.Error(w, "NATS disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"service":     "timer-gateway",
			"consumer":    gatewayCfg.JetStreamConfig.ConsumerName,
			"connections": gatewayService.Stats().TotalConnections,
		})
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     cors.AllowAll().Handler(mux),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
			cancel()
		}
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("nats_url", natsCfg.URL).
			Str("timer_api", apiURL).
			Msg("timer gateway starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("timer gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
