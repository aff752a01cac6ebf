package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

// MaxYouTubeTitle is the longest title YouTube accepts, in characters.
const MaxYouTubeTitle = 100

var (
	// ErrUnsupportedPlatform is returned for platforms without a payload variant.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrInvalidTarget is returned when a target lacks a field its platform requires.
	ErrInvalidTarget = errors.New("invalid target")
)

// Payload is the platform-specific part of a publish call. The variants are
// TikTokPayload, YouTubePayload, InstagramPayload and FacebookPayload; each
// marshals to the host's target object.
type Payload interface {
	Platform() string
	isPayload()
}

type TikTokPayload struct {
	PrivacyLevel     string `json:"privacyLevel"`
	DisabledComments bool   `json:"disabledComments"`
	DisabledDuet     bool   `json:"disabledDuet"`
	DisabledStitch   bool   `json:"disabledStitch"`
	IsBrandedContent bool   `json:"isBrandedContent"`
	IsYourBrand      bool   `json:"isYourBrand"`
	IsAIGenerated    bool   `json:"isAiGenerated"`
	PageID           string `json:"pageId,omitempty"`
}

type YouTubePayload struct {
	Title                   string `json:"title"`
	PrivacyStatus           string `json:"privacyStatus"`
	ShouldNotifySubscribers bool   `json:"shouldNotifySubscribers"`
	PageID                  string `json:"pageId,omitempty"`
}

type InstagramPayload struct {
	MediaType string `json:"mediaType"`
	PageID    string `json:"pageId,omitempty"`
}

type FacebookPayload struct {
	PageID string `json:"pageId"`
}

func (TikTokPayload) Platform() string    { return PlatformTikTok }
func (YouTubePayload) Platform() string   { return PlatformYouTube }
func (InstagramPayload) Platform() string { return PlatformInstagram }
func (FacebookPayload) Platform() string  { return PlatformFacebook }

func (TikTokPayload) isPayload()    {}
func (YouTubePayload) isPayload()   {}
func (InstagramPayload) isPayload() {}
func (FacebookPayload) isPayload()  {}

func (p TikTokPayload) MarshalJSON() ([]byte, error) {
	type fields TikTokPayload
	return marshalTarget(p.Platform(), fields(p))
}

func (p YouTubePayload) MarshalJSON() ([]byte, error) {
	type fields YouTubePayload
	return marshalTarget(p.Platform(), fields(p))
}

func (p InstagramPayload) MarshalJSON() ([]byte, error) {
	type fields InstagramPayload
	return marshalTarget(p.Platform(), fields(p))
}

func (p FacebookPayload) MarshalJSON() ([]byte, error) {
	type fields FacebookPayload
	return marshalTarget(p.Platform(), fields(p))
}

// marshalTarget encodes fields with a leading targetType discriminator.
func marshalTarget(targetType string, fields any) ([]byte, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	head := fmt.Sprintf(`{"targetType":%q`, targetType)
	if string(body) == "{}" {
		return []byte(head + "}"), nil
	}
	return []byte(head + "," + string(body[1:])), nil
}

// PayloadOptions are the account-wide defaults for each platform.
type PayloadOptions struct {
	TikTokPrivacyLevel   string
	TikTokAIGenerated    bool
	YouTubeTitle         string
	YouTubePrivacyStatus string
	YouTubeNotify        bool
}

// DefaultPayloadOptions mirrors what the publishing host expects when nothing is configured.
func DefaultPayloadOptions() PayloadOptions {
	return PayloadOptions{
		TikTokPrivacyLevel:   "PUBLIC_TO_EVERYONE",
		TikTokAIGenerated:    true,
		YouTubePrivacyStatus: "public",
	}
}

// BuildPayload selects the payload variant for t.Platform. text is the post
// text, used as the YouTube title when no title is configured. A target's
// DestinationID is sent as pageId on every platform; Facebook requires one.
func BuildPayload(t Target, text string, opts PayloadOptions) (Payload, error) {
	switch strings.ToLower(t.Platform) {
	case PlatformTikTok:
		level := opts.TikTokPrivacyLevel
		if level == "" {
			level = "PUBLIC_TO_EVERYONE"
		}
		return TikTokPayload{PrivacyLevel: level, IsAIGenerated: opts.TikTokAIGenerated, PageID: t.DestinationID}, nil
	case PlatformYouTube:
		privacy := strings.ToLower(opts.YouTubePrivacyStatus)
		if privacy == "" {
			privacy = "public"
		}
		return YouTubePayload{
			Title:                   youTubeTitle(opts.YouTubeTitle, text),
			PrivacyStatus:           privacy,
			ShouldNotifySubscribers: opts.YouTubeNotify,
			PageID:                  t.DestinationID,
		}, nil
	case PlatformInstagram:
		return InstagramPayload{MediaType: "reel", PageID: t.DestinationID}, nil
	case PlatformFacebook:
		if t.DestinationID == "" {
			return nil, fmt.Errorf("%w: facebook target needs a page id", ErrInvalidTarget)
		}
		return FacebookPayload{PageID: t.DestinationID}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, t.Platform)
}

func youTubeTitle(configured, text string) string {
	title := strings.TrimSpace(configured)
	if title == "" {
		title = strings.TrimSpace(text)
	}
	if title == "" {
		title = "AI Generated"
	}
	if r := []rune(title); len(r) > MaxYouTubeTitle {
		title = strings.TrimSpace(string(r[:MaxYouTubeTitle]))
	}
	return title
}
