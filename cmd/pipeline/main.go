// cmd/pipeline/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-reels/internal/app"
	"github.com/tendant/simple-reels/internal/config"
	"github.com/tendant/simple-reels/internal/pipeline"
	"github.com/tendant/simple-reels/internal/publish"
)

const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Stdout))
}

func run(out io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(out, nil)).Error("load config", "err", err)
		return exitConfigError
	}
	logger := cfg.NewLogger(out)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("build pipeline", "err", err)
		return exitConfigError
	}

	r := app.RunFromConfig(cfg)
	logger.Info("pipeline starting", "production", cfg.Production, "dev_mode", r.DevMode, "segments", len(r.Content.Segments()), "targets", len(r.Targets), "resume_task_id", r.TaskID)

	res := orch.Run(ctx, r)
	printSummary(out, res)
	return exitCode(res)
}

func exitCode(res *pipeline.RunResult) int {
	if res.Succeeded() {
		return exitOK
	}
	return exitRunFailed
}

func printSummary(w io.Writer, res *pipeline.RunResult) {
	fmt.Fprintf(w, "\nrun %s: %s\n", res.RunID, res.Stage)
	if c := res.Chain; c != nil {
		fmt.Fprintf(w, "  segments: %d/%d", c.Completed, c.Total)
		if c.Partial {
			fmt.Fprintf(w, " (partial: %s)", c.StopReason)
		}
		fmt.Fprintln(w)
	}
	if res.ArtifactPath != "" {
		fmt.Fprintf(w, "  artifact: %s\n", res.ArtifactPath)
	}
	if res.Report != nil {
		for _, r := range res.Report.Results {
			line := fmt.Sprintf("  %-10s %s", r.Target, r.Status)
			if r.Status == publish.StatusFailure {
				line += ": " + r.Reason
			}
			fmt.Fprintln(w, line)
		}
	}
	if res.Err != nil {
		var se *pipeline.StageError
		if errors.As(res.Err, &se) {
			fmt.Fprintf(w, "  failed in %s: %v\n", se.Stage, se.Err)
		} else {
			fmt.Fprintf(w, "  failed: %v\n", res.Err)
		}
	}
}
