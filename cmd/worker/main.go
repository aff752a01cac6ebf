// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-reels/internal/app"
	"github.com/tendant/simple-reels/internal/bus"
	"github.com/tendant/simple-reels/internal/config"
	"github.com/tendant/simple-reels/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.New(slog.NewTextHandler(os.Stdout, nil)), "load config", err)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	logger.Info("worker starting", "nats_url", cfg.Worker.NATSURL, "run_subject", cfg.Worker.RunSubject, "queue", cfg.Worker.RunQueue, "event_subject", cfg.Worker.EventSubject, "schedule", cfg.Worker.Schedule, "publishing", cfg.Publishing())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := bus.Connect(cfg.Worker.NATSURL, "simple-reels-worker")
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.Worker.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.Worker.NATSURL)
	defer nc.Close()

	events := bus.NewEventSink(nc, cfg.Worker.EventSubject, logger)
	orch, err := app.Build(ctx, cfg, logger, events)
	if err != nil {
		fatal(logger, "build pipeline", err)
	}
	w := newWorker(orch, cfg, logger)

	_, err = nc.QueueSubscribeJSON(cfg.Worker.RunSubject, cfg.Worker.RunQueue, cfg.Worker.RunTimeout, w.handleRequest)
	if err != nil {
		fatal(logger, "subscribe", err, "subject", cfg.Worker.RunSubject, "queue", cfg.Worker.RunQueue)
	}
	logger.Info("listening for run requests", "subject", cfg.Worker.RunSubject, "queue", cfg.Worker.RunQueue)

	sched := schedule.New(logger)
	if cfg.Worker.Schedule != "" {
		if _, err := sched.Add("configured-run", cfg.Worker.Schedule, func(ctx context.Context) {
			runCtx, cancel := context.WithTimeout(ctx, cfg.Worker.RunTimeout)
			defer cancel()
			w.runConfigured(runCtx)
		}); err != nil {
			fatal(logger, "register schedule", err)
		}
	}
	sched.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Worker.HTTPAddr,
		Handler:           newRouter(w, nc, sched),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.Worker.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop in time", "err", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
