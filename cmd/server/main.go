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

	"go.uber.org/zap"

	"okey/internal/bot"
	"okey/internal/config"
	"okey/internal/history"
	"okey/internal/room"
	"okey/internal/server"
	"okey/internal/session"
	"okey/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "okey: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	strategies := bot.NewRegistry()
	if cfg.BotScript != "" {
		lua, err := bot.LoadLua(cfg.BotScript)
		if err != nil {
			return fmt.Errorf("load bot script: %w", err)
		}
		defer lua.Close()
		strategies.Register(lua)
	}
	strategy, err := strategies.Select(cfg.BotStrategy)
	if err != nil {
		return err
	}

	registry := room.NewRegistry(room.NewMemoryStore(),
		room.WithLogger(log.Named("rooms")),
		room.WithStrategy(strategy),
		room.WithBotDelays(time.Duration(cfg.BotDrawDelay), time.Duration(cfg.BotDiscardDelay)),
	)
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewManager(session.DefaultBuffer, log.Named("sessions"))
	hub := server.NewHub(registry, sessions, log.Named("hub"))
	recorder := history.NewRecorder(store, log.Named("history"))

	hubEvents, cancelHub := registry.Subscribe(1024)
	defer cancelHub()
	recEvents, cancelRec := registry.Subscribe(1024)
	defer cancelRec()
	go hub.Run(ctx, hubEvents)
	go recorder.Run(ctx, recEvents)

	go registry.CleanupLoop(ctx, time.Duration(cfg.CleanupInterval), time.Duration(cfg.PausedRoomTTL))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(registry, sessions, recorder, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("db", cfg.DBPath),
			zap.String("bot_strategy", strategy.Name()),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	return nil
}
