package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tendant/simple-reels/internal/blotato"
)

type fakePoster struct {
	got blotato.Post
	err error
}

func (f *fakePoster) Publish(ctx context.Context, post blotato.Post) (*blotato.Receipt, error) {
	f.got = post
	if f.err != nil {
		return nil, f.err
	}
	return &blotato.Receipt{SubmissionID: "s-1"}, nil
}

func TestBlotatoPublisher(t *testing.T) {
	poster := &fakePoster{}
	p := NewBlotatoPublisher(poster)
	payload, _ := BuildPayload(Target{Platform: "instagram"}, "", DefaultPayloadOptions())

	rcpt, err := p.Publish(context.Background(), Delivery{
		Target:    Target{Platform: "instagram", AccountID: "acc"},
		Payload:   payload,
		Text:      "caption",
		HostedURL: "https://media/x.mp4",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rcpt.ID != "s-1" {
		t.Fatalf("unexpected receipt %+v", rcpt)
	}
	if poster.got.AccountID != "acc" || poster.got.Content.MediaURLs[0] != "https://media/x.mp4" || poster.got.Content.Platform != "instagram" {
		t.Fatalf("unexpected post %+v", poster.got)
	}
	b, _ := json.Marshal(poster.got.Target)
	if string(b) != `{"targetType":"instagram","mediaType":"reel"}` {
		t.Fatalf("unexpected target %s", b)
	}
}

func TestBlotatoPublisherRequiresAccount(t *testing.T) {
	poster := &fakePoster{}
	_, err := NewBlotatoPublisher(poster).Publish(context.Background(), Delivery{Target: Target{Platform: "tiktok"}})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}
