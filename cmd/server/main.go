package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/api"
	"github.com/codehive/backend/internal/autosave"
	"github.com/codehive/backend/internal/config"
	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/room"
	"github.com/codehive/backend/internal/runner"
	"github.com/codehive/backend/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		// The realtime path runs memory-only when the database is down;
		// code survives only as long as the process.
		log.Error().Err(err).Msg("database unavailable, running without persistence")
		database = nil
	} else {
		defer database.Close()
	}

	store := room.NewStore(database)

	hub := ws.NewHub(store)
	go hub.Run()

	saver := autosave.New(store, cfg.AutosaveInterval)
	saver.Start()
	defer saver.Stop()

	run := runner.New(cfg.Judge0URL, cfg.Judge0Key, cfg.Judge0Host, cfg.RunTimeout)

	r := mux.NewRouter()
	api.New(hub, store, database, run).Register(r)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, w, req)
	})

	handler := corsMiddleware(cfg.AllowedOrigin, r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Info().Str("addr", addr).Str("db", cfg.DBPath).Msg("codehive server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
