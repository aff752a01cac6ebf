package youtube

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"

	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/retry"
)

// VideoUploader is satisfied by *Uploader.
type VideoUploader interface {
	Upload(ctx context.Context, videoFile string, meta Metadata) (string, error)
}

// Publisher delivers the local artifact straight to YouTube. It is routed in
// place of the default publisher for the youtube platform.
type Publisher struct {
	uploader    VideoUploader
	description string
	tags        []string
}

func NewPublisher(u VideoUploader, description string, tags []string) *Publisher {
	return &Publisher{uploader: u, description: description, tags: tags}
}

func (p *Publisher) Publish(ctx context.Context, d publish.Delivery) (*publish.Receipt, error) {
	if d.LocalPath == "" {
		return nil, fmt.Errorf("%w: direct youtube upload needs a local file", publish.ErrInvalidTarget)
	}
	payload, ok := d.Payload.(publish.YouTubePayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected a youtube payload, got %T", publish.ErrInvalidTarget, d.Payload)
	}
	description := p.description
	if description == "" {
		description = d.Text
	}
	id, err := p.uploader.Upload(ctx, d.LocalPath, Metadata{
		Title:             payload.Title,
		Description:       description,
		Tags:              p.tags,
		CategoryID:        "22",
		PrivacyStatus:     payload.PrivacyStatus,
		NotifySubscribers: payload.ShouldNotifySubscribers,
		PublishAt:         d.ScheduledTime,
	})
	if err != nil {
		return nil, asStatusError(err)
	}
	return &publish.Receipt{ID: id, URL: WatchURL(id)}, nil
}

// asStatusError exposes API status codes to the broker's retry policy.
func asStatusError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", err, &retry.StatusError{StatusCode: apiErr.Code, URL: "youtube videos.insert", Body: apiErr.Message})
	}
	return err
}
