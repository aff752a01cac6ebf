// internal/download/download.go

// Package download fetches remote render results to local disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-reels/internal/retry"
)

// ErrDownloadFailed is returned for non-2xx responses and transport errors.
var ErrDownloadFailed = errors.New("download failed")

// Downloader fetches URLs into a directory.
type Downloader struct {
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

// New creates a downloader using policy for transient failures.
func New(policy retry.Policy, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client: &http.Client{Timeout: 5 * time.Minute},
		policy: policy,
		logger: logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (d *Downloader) WithHTTPClient(c *http.Client) *Downloader {
	d.client = c
	return d
}

// Fetch downloads url into dir and returns the local path. Partial files are
// removed on failure.
func (d *Downloader) Fetch(ctx context.Context, url, dir string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: empty url", ErrDownloadFailed)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	var path string
	attempts, err := d.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := d.fetchOnce(ctx, url, dir)
		if err != nil {
			d.logger.Warn("download attempt failed", "url", url, "attempt", attempt, "err", err)
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s after %d attempt(s): %w", ErrDownloadFailed, url, attempts, err)
	}
	d.logger.Debug("downloaded", "url", url, "path", path)
	return path, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", retry.NewStatusError(resp)
	}

	temp, err := os.CreateTemp(dir, "clip-*"+extension(url))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(temp, resp.Body); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return "", fmt.Errorf("copy body to disk: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return temp.Name(), nil
}

func extension(rawURL string) string {
	ext := filepath.Ext(stripQuery(rawURL))
	if ext == "" || len(ext) > 5 {
		return ".mp4"
	}
	return ext
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
