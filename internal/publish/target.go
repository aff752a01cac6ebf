package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Artifact is a finished video. At least one of LocalPath or RemoteURL is set;
// RemoteURL must be publicly resolvable.
type Artifact struct {
	LocalPath string
	RemoteURL string
}

func (a Artifact) cacheKey() string {
	if a.RemoteURL != "" {
		return "url:" + a.RemoteURL
	}
	return "file:" + a.LocalPath
}

// Target is one platform destination. DestinationID is the page or channel id
// on platforms that need one.
type Target struct {
	Platform      string `json:"platform" yaml:"platform"`
	DestinationID string `json:"pageId,omitempty" yaml:"pageId,omitempty"`
	AccountID     string `json:"accountId,omitempty" yaml:"accountId,omitempty"`
}

// String renders the target for logs and summaries.
func (t Target) String() string {
	if t.DestinationID == "" {
		return t.Platform
	}
	return t.Platform + "/" + t.DestinationID
}

func (t Target) normalized() Target {
	t.Platform = strings.ToLower(strings.TrimSpace(t.Platform))
	t.DestinationID = strings.TrimSpace(t.DestinationID)
	return t
}

type targetKey struct {
	platform      string
	destinationID string
}

// deliveryKey identifies one external delivery within a broker.
type deliveryKey struct {
	platform      string
	destinationID string
	accountID     string
	hostedURL     string
}

// ErrNoTargets is returned when there is nothing to publish to.
var ErrNoTargets = errors.New("no publish targets")

// ParseTargets decodes a JSON list of targets such as
// [{"platform":"tiktok"},{"platform":"facebook","pageId":"123"}].
func ParseTargets(raw string) ([]Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoTargets
	}
	var targets []Target
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	for i, t := range targets {
		if strings.TrimSpace(t.Platform) == "" {
			return nil, fmt.Errorf("parse targets: entry %d has no platform", i)
		}
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	return targets, nil
}

// Dedupe normalizes platforms to lower case and keeps the first target of
// every (platform, destination) pair, preserving order.
func Dedupe(targets []Target) []Target {
	seen := make(map[targetKey]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		t = t.normalized()
		k := targetKey{t.Platform, t.DestinationID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
