// internal/voice/tts.go

// Package voice synthesizes voiceover audio for a script.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-reels/internal/retry"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "tts-1-hd"
	DefaultVoice   = "nova"
)

// ErrEmptyScript is returned when there is nothing to speak.
var ErrEmptyScript = errors.New("voiceover script is empty")

// Config configures the OpenAI speech client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
}

// OpenAI calls the /audio/speech endpoint.
type OpenAI struct {
	cfg    Config
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

// NewOpenAI creates a speech client. Empty config fields take defaults.
func NewOpenAI(cfg Config, policy retry.Policy, logger *slog.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
		policy: policy,
		logger: logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (o *OpenAI) WithHTTPClient(c *http.Client) *OpenAI {
	o.client = c
	return o
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize speaks script and writes an MP3 into dir.
func (o *OpenAI) Synthesize(ctx context.Context, script, dir string) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", ErrEmptyScript
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create voiceover dir: %w", err)
	}
	body, err := json.Marshal(speechRequest{
		Model:          o.cfg.Model,
		Voice:          o.cfg.Voice,
		Input:          script,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return "", fmt.Errorf("encode speech request: %w", err)
	}

	o.logger.Info("generating voiceover", "model", o.cfg.Model, "voice", o.cfg.Voice, "chars", len(script))

	path := filepath.Join(dir, "voiceover-"+uuid.NewString()+".mp3")
	_, err = o.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return o.speak(ctx, body, path)
	})
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("synthesize voiceover: %w", err)
	}
	return path, nil
}

func (o *OpenAI) speak(ctx context.Context, body []byte, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return retry.NewStatusError(resp)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write audio: %w", err)
	}
	return f.Close()
}
