package main

import (
	"fmt"
	"net/http"

	"github.com/metagame/metagame/go/internal/timers/timerv1"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config *Config, services *Services) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: newHandler(services),
	}
}

func newHandler(services *Services) http.Handler {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux)

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func registerServices(mux *http.ServeMux, services *Services) {
	timerServicePath, timerServiceHandler := timerv1.NewTimerServiceHandler(services.Timers)
	mux.Handle(timerServicePath, timerServiceHandler)

	if services.Gateway != nil {
		services.Gateway.RegisterRoutes(mux)
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
