package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tendant/simple-reels/internal/app"
	"github.com/tendant/simple-reels/internal/config"
	"github.com/tendant/simple-reels/internal/pipeline"
	"github.com/tendant/simple-reels/internal/schedule"
	"github.com/tendant/simple-reels/pkg/schema"
)

type runner interface {
	Run(ctx context.Context, run pipeline.Run) *pipeline.RunResult
}

// worker runs one reel at a time, whether it came from NATS or the schedule.
type worker struct {
	orch   runner
	cfg    config.Config
	logger *slog.Logger

	mu      sync.Mutex
	lastRun *runStatus
}

type runStatus struct {
	ID       string       `json:"id"`
	Stage    schema.Stage `json:"stage"`
	Error    string       `json:"error,omitempty"`
	Finished time.Time    `json:"finished"`
}

func newWorker(orch runner, cfg config.Config, logger *slog.Logger) *worker {
	return &worker{orch: orch, cfg: cfg, logger: logger}
}

// handleRequest is the NATS handler for schema.RunRequested messages.
func (w *worker) handleRequest(ctx context.Context, data []byte) {
	var req schema.RunRequested
	if err := json.Unmarshal(data, &req); err != nil {
		w.logger.Error("decode run request failed", "err", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	w.logger.Info("received run request", "run_id", req.ID, "scenes", len(req.Scenes), "task_id", req.TaskID)
	w.execute(ctx, app.RunFromRequest(req, w.cfg))
}

// runConfigured starts the run described by the environment and run file.
func (w *worker) runConfigured(ctx context.Context) {
	run := app.RunFromConfig(w.cfg)
	run.ID = uuid.NewString()
	w.execute(ctx, run)
}

func (w *worker) execute(ctx context.Context, run pipeline.Run) *pipeline.RunResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.orch.Run(ctx, run)

	status := &runStatus{ID: res.RunID, Stage: res.Stage, Finished: time.Now()}
	if res.Err != nil {
		status.Error = res.Err.Error()
	}
	w.lastRun = status
	return res
}

// status reads without waiting for a running reel.
func (w *worker) status() (running bool, last *runStatus) {
	if !w.mu.TryLock() {
		return true, nil
	}
	defer w.mu.Unlock()
	return false, w.lastRun
}

type healthChecker interface {
	Connected() bool
}

func newRouter(w *worker, nc healthChecker, sched *schedule.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		connected := nc == nil || nc.Connected()
		code := http.StatusOK
		if !connected {
			code = http.StatusServiceUnavailable
		}
		writeJSON(rw, code, map[string]any{"status": http.StatusText(code), "nats_connected": connected})
	})

	r.Get("/status", func(rw http.ResponseWriter, req *http.Request) {
		running, last := w.status()
		body := map[string]any{"running": running}
		if last != nil {
			body["last_run"] = last
		}
		if sched != nil {
			body["schedule"] = sched.Entries()
		}
		writeJSON(rw, http.StatusOK, body)
	})
	return r
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}
