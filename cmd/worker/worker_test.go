package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tendant/simple-reels/internal/config"
	"github.com/tendant/simple-reels/internal/pipeline"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/schedule"
	"github.com/tendant/simple-reels/pkg/schema"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []pipeline.Run
}

func (f *fakeRunner) Run(ctx context.Context, run pipeline.Run) *pipeline.RunResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return &pipeline.RunResult{RunID: run.ID, Stage: schema.StageDone}
}

func testConfig() config.Config {
	return config.Config{
		Production: true,
		Content:    config.RunContent{Prompt: "configured"},
		Publish:    config.PublishConfig{Targets: []publish.Target{{Platform: "tiktok"}}},
	}
}

func newTestWorker(r runner) *worker {
	return newWorker(r, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleRequest(t *testing.T) {
	r := &fakeRunner{}
	w := newTestWorker(r)

	data, _ := json.Marshal(schema.RunRequested{ID: "req-1", Prompt: "a heron"})
	w.handleRequest(context.Background(), data)

	if len(r.runs) != 1 {
		t.Fatalf("expected one run, got %d", len(r.runs))
	}
	if r.runs[0].ID != "req-1" || r.runs[0].Content.Prompt != "a heron" || r.runs[0].DevMode {
		t.Fatalf("unexpected run %+v", r.runs[0])
	}
	if _, last := w.status(); last == nil || last.ID != "req-1" || last.Stage != schema.StageDone {
		t.Fatalf("unexpected last run %+v", last)
	}
}

func TestHandleRequestAssignsID(t *testing.T) {
	r := &fakeRunner{}
	newTestWorker(r).handleRequest(context.Background(), []byte(`{}`))
	if len(r.runs) != 1 || r.runs[0].ID == "" {
		t.Fatalf("expected a generated run id, got %+v", r.runs)
	}
}

func TestHandleRequestIgnoresMalformed(t *testing.T) {
	r := &fakeRunner{}
	newTestWorker(r).handleRequest(context.Background(), []byte(`{not json`))
	if len(r.runs) != 0 {
		t.Fatalf("malformed request must not run, got %d", len(r.runs))
	}
}

func TestRunConfigured(t *testing.T) {
	r := &fakeRunner{}
	newTestWorker(r).runConfigured(context.Background())
	if len(r.runs) != 1 || r.runs[0].Content.Prompt != "configured" || r.runs[0].ID == "" {
		t.Fatalf("unexpected runs %+v", r.runs)
	}
}

type fakeConn struct{ connected bool }

func (f fakeConn) Connected() bool { return f.connected }

func TestHealthz(t *testing.T) {
	w := newTestWorker(&fakeRunner{})
	for _, tt := range []struct {
		connected bool
		want      int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	} {
		srv := httptest.NewServer(newRouter(w, fakeConn{tt.connected}, nil))
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		resp.Body.Close()
		srv.Close()
		if resp.StatusCode != tt.want {
			t.Fatalf("connected=%v: got %d, want %d", tt.connected, resp.StatusCode, tt.want)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	w := newTestWorker(&fakeRunner{})
	w.runConfigured(context.Background())

	sched := schedule.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := sched.Add("configured-run", "@hourly", func(context.Context) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	srv := httptest.NewServer(newRouter(w, fakeConn{true}, sched))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Running  bool             `json:"running"`
		LastRun  *runStatus       `json:"last_run"`
		Schedule []schedule.Entry `json:"schedule"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Running || body.LastRun == nil || len(body.Schedule) != 1 {
		t.Fatalf("unexpected status %+v", body)
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, run pipeline.Run) *pipeline.RunResult {
	close(b.started)
	<-b.release
	return &pipeline.RunResult{RunID: run.ID, Stage: schema.StageDone}
}

func TestStatusReportsRunInProgress(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	w := newTestWorker(r)
	done := make(chan struct{})
	go func() {
		w.runConfigured(context.Background())
		close(done)
	}()
	<-r.started

	if running, _ := w.status(); !running {
		t.Fatal("expected a run in progress")
	}
	close(r.release)
	<-done
	if running, last := w.status(); running || last == nil {
		t.Fatalf("expected an idle worker with a last run, got running=%v last=%+v", running, last)
	}
}
