package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildPayload(t *testing.T) {
	opts := DefaultPayloadOptions()
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"tiktok", Target{Platform: "tiktok"}, `{"targetType":"tiktok","privacyLevel":"PUBLIC_TO_EVERYONE","disabledComments":false,"disabledDuet":false,"disabledStitch":false,"isBrandedContent":false,"isYourBrand":false,"isAiGenerated":true}`},
		{"youtube", Target{Platform: "YouTube"}, `{"targetType":"youtube","title":"sunrise over the bay","privacyStatus":"public","shouldNotifySubscribers":false}`},
		{"instagram", Target{Platform: "instagram"}, `{"targetType":"instagram","mediaType":"reel"}`},
		{"facebook", Target{Platform: "facebook", DestinationID: "123"}, `{"targetType":"facebook","pageId":"123"}`},
		{"instagram page", Target{Platform: "instagram", DestinationID: "page-42"}, `{"targetType":"instagram","mediaType":"reel","pageId":"page-42"}`},
		{"youtube page", Target{Platform: "youtube", DestinationID: "chan-7"}, `{"targetType":"youtube","title":"sunrise over the bay","privacyStatus":"public","shouldNotifySubscribers":false,"pageId":"chan-7"}`},
		{"tiktok page", Target{Platform: "tiktok", DestinationID: "tt-1"}, `{"targetType":"tiktok","privacyLevel":"PUBLIC_TO_EVERYONE","disabledComments":false,"disabledDuet":false,"disabledStitch":false,"isBrandedContent":false,"isYourBrand":false,"isAiGenerated":true,"pageId":"tt-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildPayload(tt.target, "sunrise over the bay", opts)
			if err != nil {
				t.Fatalf("BuildPayload: %v", err)
			}
			got, err := json.Marshal(p)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestBuildPayloadErrors(t *testing.T) {
	if _, err := BuildPayload(Target{Platform: "facebook"}, "", DefaultPayloadOptions()); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := BuildPayload(Target{Platform: "friendster"}, "", DefaultPayloadOptions()); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestYouTubeTitle(t *testing.T) {
	long := strings.Repeat("é", 150)
	p, _ := BuildPayload(Target{Platform: "youtube"}, long, PayloadOptions{})
	yt := p.(YouTubePayload)
	if n := utf8.RuneCountInString(yt.Title); n != MaxYouTubeTitle {
		t.Fatalf("expected %d characters, got %d", MaxYouTubeTitle, n)
	}
	if yt.PrivacyStatus != "public" {
		t.Fatalf("expected public default, got %q", yt.PrivacyStatus)
	}

	p, _ = BuildPayload(Target{Platform: "youtube"}, "", PayloadOptions{})
	if p.(YouTubePayload).Title != "AI Generated" {
		t.Fatalf("unexpected fallback title %q", p.(YouTubePayload).Title)
	}

	p, _ = BuildPayload(Target{Platform: "youtube"}, "text", PayloadOptions{YouTubeTitle: "Configured", YouTubePrivacyStatus: "UNLISTED"})
	if yt := p.(YouTubePayload); yt.Title != "Configured" || yt.PrivacyStatus != "unlisted" {
		t.Fatalf("unexpected payload %+v", yt)
	}
}

func TestParseTargetsAndDedupe(t *testing.T) {
	targets, err := ParseTargets(`[{"platform":"tiktok"},{"platform":"facebook","pageId":"42","accountId":"a1"},{"platform":"TIKTOK"}]`)
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(targets) != 3 || targets[1].DestinationID != "42" || targets[1].AccountID != "a1" {
		t.Fatalf("unexpected targets %+v", targets)
	}
	deduped := Dedupe(targets)
	if len(deduped) != 2 || deduped[0].Platform != "tiktok" || deduped[1].Platform != "facebook" {
		t.Fatalf("unexpected dedupe %+v", deduped)
	}

	for _, raw := range []string{"", "[]", `[{"pageId":"1"}]`, "not json"} {
		if _, err := ParseTargets(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestDedupeKeepsDistinctDestinations(t *testing.T) {
	got := Dedupe([]Target{
		{Platform: "facebook", DestinationID: "1"},
		{Platform: "facebook", DestinationID: "2"},
		{Platform: "Facebook", DestinationID: "1"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %+v", got)
	}
}
