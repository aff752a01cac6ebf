// internal/blotato/client.go

// Package blotato is a thin client for the Blotato publishing API.
//
// Endpoints used:
//   - POST /v2/media  registers a public media URL and returns a hosted URL
//   - POST /v2/posts  publishes or schedules a post to one social account
//
// Every call is a single HTTP request; callers own retries.
package blotato

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-reels/internal/retry"
)

// DefaultBaseURL is the public Blotato API root.
const DefaultBaseURL = "https://backend.blotato.com"

// ErrNoHostedURL is returned when a media upload response carries no URL.
var ErrNoHostedURL = errors.New("blotato: upload response has no media url")

// Client calls the Blotato API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client. apiKey is required.
func New(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("blotato: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Content is the platform-independent part of a post.
type Content struct {
	Text      string   `json:"text"`
	Platform  string   `json:"platform"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

// Post is one publish request. Target is the platform-specific target object
// and must marshal with a "targetType" field.
type Post struct {
	AccountID     string
	Content       Content
	Target        any
	ScheduledTime string
}

// Receipt is the publish acknowledgement.
type Receipt struct {
	SubmissionID string
	Raw          map[string]any
}

type postEnvelope struct {
	Post struct {
		AccountID string  `json:"accountId"`
		Content   Content `json:"content"`
		Target    any     `json:"target"`
	} `json:"post"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
}

// UploadMedia registers a public URL and returns the Blotato-hosted URL.
func (c *Client) UploadMedia(ctx context.Context, mediaURL string) (string, error) {
	var out map[string]any
	if err := c.post(ctx, "/v2/media", map[string]string{"url": mediaURL}, &out); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if hosted := hostedURL(out); hosted != "" {
		return hosted, nil
	}
	return "", ErrNoHostedURL
}

// Publish submits one post.
func (c *Client) Publish(ctx context.Context, p Post) (*Receipt, error) {
	var env postEnvelope
	env.Post.AccountID = p.AccountID
	env.Post.Content = p.Content
	env.Post.Target = p.Target
	env.ScheduledTime = p.ScheduledTime

	var out map[string]any
	if err := c.post(ctx, "/v2/posts", env, &out); err != nil {
		return nil, fmt.Errorf("publish %s post: %w", p.Content.Platform, err)
	}
	r := &Receipt{Raw: out}
	if id, ok := out["postSubmissionId"].(string); ok {
		r.SubmissionID = id
	}
	return r, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("blotato-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.NewStatusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// hostedURL accepts the url, mediaUrl and data.url response shapes.
func hostedURL(m map[string]any) string {
	for _, key := range []string{"url", "mediaUrl"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	if data, ok := m["data"].(map[string]any); ok {
		if s, ok := data["url"].(string); ok {
			return s
		}
	}
	return ""
}
