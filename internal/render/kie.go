// internal/render/kie.go

package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-reels/internal/retry"
)

// DefaultKieBaseURL is the public Kie.ai API root.
const DefaultKieBaseURL = "https://api.kie.ai/api/v1"

// Kie success flags as reported by record-info.
const (
	kieFlagGenerating     = 0
	kieFlagSuccess        = 1
	kieFlagCreationFailed = 2
	kieFlagGenerateFailed = 3
)

var errNoData = errors.New("response has no data")

// KieProvider talks to the Kie.ai Veo endpoints.
type KieProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewKieProvider creates a provider. An empty baseURL selects DefaultKieBaseURL.
func NewKieProvider(baseURL, apiKey string) *KieProvider {
	if baseURL == "" {
		baseURL = DefaultKieBaseURL
	}
	return &KieProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (k *KieProvider) WithHTTPClient(c *http.Client) *KieProvider {
	k.client = c
	return k
}

type kieGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspectRatio"`
	Duration    int    `json:"duration,omitempty"`
}

type kieExtendRequest struct {
	TaskID string `json:"taskId"`
	Prompt string `json:"prompt"`
}

type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type kieTaskData struct {
	TaskID string `json:"taskId"`
}

type kieRecord struct {
	TaskID       string          `json:"taskId"`
	SuccessFlag  json.RawMessage `json:"successFlag"`
	ErrorMessage string          `json:"errorMessage"`
	Response     *struct {
		ResultURLs []string `json:"resultUrls"`
	} `json:"response"`
}

func kieModel(q Quality) string {
	if q == QualityQuality {
		return "veo3"
	}
	return "veo3_fast"
}

// Submit implements Provider.
func (k *KieProvider) Submit(ctx context.Context, req Request) (string, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "9:16"
	}
	body := kieGenerateRequest{
		Prompt:      req.Prompt,
		Model:       kieModel(req.Quality),
		AspectRatio: aspect,
		Duration:    req.Duration,
	}
	var data kieTaskData
	if err := k.call(ctx, http.MethodPost, "/veo/generate", body, &data); err != nil {
		return "", err
	}
	return data.TaskID, nil
}

// Extend implements Provider.
func (k *KieProvider) Extend(ctx context.Context, jobID, prompt string) (string, error) {
	var data kieTaskData
	if err := k.call(ctx, http.MethodPost, "/veo/extend", kieExtendRequest{TaskID: jobID, Prompt: prompt}, &data); err != nil {
		return "", err
	}
	return data.TaskID, nil
}

// Status implements Provider.
func (k *KieProvider) Status(ctx context.Context, jobID string) (ProviderStatus, error) {
	var rec kieRecord
	path := "/veo/record-info?taskId=" + url.QueryEscape(jobID)
	if err := k.call(ctx, http.MethodGet, path, nil, &rec); err != nil {
		if errors.Is(err, errNoData) {
			// The record is not visible yet right after submission.
			return ProviderStatus{Flag: FlagPending}, nil
		}
		return ProviderStatus{}, err
	}
	return rec.status()
}

func (r kieRecord) status() (ProviderStatus, error) {
	raw := strings.Trim(strings.TrimSpace(string(r.SuccessFlag)), `"`)
	if raw == "" || raw == "null" {
		return ProviderStatus{Flag: FlagPending}, nil
	}
	flag, err := strconv.Atoi(raw)
	if err != nil {
		return ProviderStatus{}, fmt.Errorf("decode successFlag %q: %w", raw, err)
	}
	switch flag {
	case kieFlagGenerating:
		return ProviderStatus{Flag: FlagRunning}, nil
	case kieFlagSuccess:
		st := ProviderStatus{Flag: FlagSucceeded}
		if r.Response != nil {
			st.ResultURLs = r.Response.ResultURLs
		}
		return st, nil
	case kieFlagCreationFailed, kieFlagGenerateFailed:
		msg := r.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("generation failed (successFlag=%d)", flag)
		}
		return ProviderStatus{Flag: FlagFailed, Message: msg}, nil
	}
	return ProviderStatus{}, fmt.Errorf("unknown successFlag %d", flag)
}

func (k *KieProvider) call(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.NewStatusError(resp)
	}

	var env kieEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return &retry.StatusError{StatusCode: env.Code, URL: k.baseURL + path, Body: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errNoData
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
