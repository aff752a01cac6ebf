// internal/youtube/uploader.go

// Package youtube uploads finished videos straight to the YouTube Data API,
// bypassing the publishing broker's host for channels that need it.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Credentials is an OAuth client plus a long-lived refresh token.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c Credentials) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return errors.New("youtube: client id, client secret and refresh token are required")
	}
	return nil
}

// Metadata describes the uploaded video.
type Metadata struct {
	Title             string
	Description       string
	Tags              []string
	CategoryID        string
	PrivacyStatus     string
	NotifySubscribers bool
	// PublishAt schedules the video (RFC 3339). Scheduled videos are uploaded private.
	PublishAt string
}

// Uploader inserts videos through the Data API.
type Uploader struct {
	svc    *yt.Service
	logger *slog.Logger
}

// NewUploader authenticates with creds and builds the API client.
func NewUploader(ctx context.Context, creds Credentials, logger *slog.Logger) (*Uploader, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{yt.YoutubeUploadScope, yt.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
	return NewUploaderWithOptions(ctx, logger, option.WithHTTPClient(client))
}

// NewUploaderWithOptions builds the API client from raw client options.
func NewUploaderWithOptions(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Uploader, error) {
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{svc: svc, logger: logger}, nil
}

// Upload sends videoFile and returns the new video id.
func (u *Uploader) Upload(ctx context.Context, videoFile string, meta Metadata) (string, error) {
	f, err := os.Open(videoFile)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	privacy := meta.PrivacyStatus
	if privacy == "" {
		privacy = "public"
	}
	status := &yt.VideoStatus{PrivacyStatus: privacy}
	if meta.PublishAt != "" {
		status.PrivacyStatus = "private"
		status.PublishAt = meta.PublishAt
	}
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: status,
	}

	u.logger.Info("uploading to youtube", "title", meta.Title, "privacy", status.PrivacyStatus, "publish_at", meta.PublishAt)
	uploaded, err := u.svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(meta.NotifySubscribers).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	u.logger.Info("youtube upload complete", "video_id", uploaded.Id)
	return uploaded.Id, nil
}

// WatchURL returns the public URL of a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/shorts/" + videoID
}
