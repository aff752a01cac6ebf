package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/tendant/simple-reels/internal/blotato"
)

// Delivery is everything a Publisher needs to place one artifact on one target.
type Delivery struct {
	Target        Target
	Payload       Payload
	Text          string
	HostedURL     string
	LocalPath     string
	ScheduledTime string
}

// Receipt acknowledges a delivery.
type Receipt struct {
	ID  string
	URL string
	Raw map[string]any
}

// Publisher performs a single delivery attempt. Retries belong to the caller.
type Publisher interface {
	Publish(ctx context.Context, d Delivery) (*Receipt, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, d Delivery) (*Receipt, error)

func (f PublisherFunc) Publish(ctx context.Context, d Delivery) (*Receipt, error) {
	return f(ctx, d)
}

// Router picks a Publisher per platform, falling back to a default.
type Router struct {
	fallback   Publisher
	byPlatform map[string]Publisher
}

func NewRouter(fallback Publisher) *Router {
	return &Router{fallback: fallback, byPlatform: make(map[string]Publisher)}
}

// Handle routes platform to p instead of the fallback.
func (r *Router) Handle(platform string, p Publisher) *Router {
	r.byPlatform[strings.ToLower(platform)] = p
	return r
}

// For returns the publisher for platform, or nil when none is configured.
func (r *Router) For(platform string) Publisher {
	if p, ok := r.byPlatform[strings.ToLower(platform)]; ok {
		return p
	}
	return r.fallback
}

// BlotatoPoster is the part of the Blotato client used for posting.
type BlotatoPoster interface {
	Publish(ctx context.Context, post blotato.Post) (*blotato.Receipt, error)
}

// BlotatoPublisher posts through Blotato using the hosted media URL.
type BlotatoPublisher struct {
	client BlotatoPoster
}

func NewBlotatoPublisher(client BlotatoPoster) *BlotatoPublisher {
	return &BlotatoPublisher{client: client}
}

func (p *BlotatoPublisher) Publish(ctx context.Context, d Delivery) (*Receipt, error) {
	if d.Target.AccountID == "" {
		return nil, fmt.Errorf("%w: no account id for %s", ErrInvalidTarget, d.Target)
	}
	rcpt, err := p.client.Publish(ctx, blotato.Post{
		AccountID: d.Target.AccountID,
		Content: blotato.Content{
			Text:      d.Text,
			Platform:  d.Target.Platform,
			MediaURLs: []string{d.HostedURL},
		},
		Target:        d.Payload,
		ScheduledTime: d.ScheduledTime,
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{ID: rcpt.SubmissionID, Raw: rcpt.Raw}, nil
}
