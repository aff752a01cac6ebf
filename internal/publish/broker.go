// internal/publish/broker.go

// Package publish delivers a finished artifact to a set of social platform
// targets. The artifact is uploaded to the media host once per broker and
// the hosted URL is reused for every target; targets are published in
// parallel and each one gets its own bounded retry budget.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-reels/internal/retry"
)

// ErrUploadFailed is returned when the artifact could not be hosted. No target
// is attempted in that case.
var ErrUploadFailed = errors.New("media upload failed")

// MediaHost registers a public URL with the publishing host and returns the
// hosted media URL.
type MediaHost interface {
	UploadMedia(ctx context.Context, url string) (string, error)
}

// Stager makes a local file reachable by URL.
type Stager interface {
	Stage(ctx context.Context, localPath string) (string, error)
}

// Options configures a Broker.
type Options struct {
	Policy   retry.Policy
	Payloads PayloadOptions
	// Accounts maps a platform to the account used when a target has none.
	Accounts map[string]string
	// Concurrency limits parallel target publishes. Zero means unlimited.
	Concurrency int
}

// Broker publishes artifacts. A Broker's memory of hosted uploads and
// dispatched deliveries lasts as long as the Broker; create one per run.
//
// A delivery is claimed before it is sent. A concurrent Publish that reaches
// a claimed delivery waits for the holder: it reports a deduplicated success
// when the holder delivered, and claims the delivery itself when the holder
// failed.
type Broker struct {
	host   MediaHost
	stager Stager
	router *Router
	opts   Options
	logger *slog.Logger

	uploadMu sync.Mutex
	hosted   map[string]string

	mu         sync.Mutex
	dispatched map[deliveryKey]*claim
}

// claim is one delivery in flight or done. done closes once ok is final.
type claim struct {
	done chan struct{}
	ok   bool
}

// NewBroker creates a broker. stager may be nil when every artifact carries a
// RemoteURL.
func NewBroker(host MediaHost, stager Stager, router *Router, opts Options, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = retry.Default()
	}
	accounts := make(map[string]string, len(opts.Accounts))
	for k, v := range opts.Accounts {
		accounts[strings.ToLower(k)] = v
	}
	opts.Accounts = accounts
	return &Broker{
		host:       host,
		stager:     stager,
		router:     router,
		opts:       opts,
		logger:     logger,
		hosted:     make(map[string]string),
		dispatched: make(map[deliveryKey]*claim),
	}
}

// Request is one publish call.
type Request struct {
	Artifact      Artifact
	Targets       []Target
	Text          string
	ScheduledTime string
}

// Publish uploads the artifact if this broker has not hosted it yet, then
// publishes to every distinct target. A target failure never affects the
// others; the returned report has one result per distinct target. The error
// is non-nil only when nothing could be attempted.
func (b *Broker) Publish(ctx context.Context, req Request) (*Report, error) {
	targets := Dedupe(req.Targets)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	hostedURL, err := b.hostedURL(ctx, req.Artifact)
	if err != nil {
		return nil, err
	}

	report := &Report{HostedURL: hostedURL, Results: make([]Result, len(targets))}
	var g errgroup.Group
	if b.opts.Concurrency > 0 {
		g.SetLimit(b.opts.Concurrency)
	}
	for i, t := range targets {
		g.Go(func() error {
			report.Results[i] = b.publishOne(ctx, t, req, hostedURL)
			return nil
		})
	}
	g.Wait()

	if report.Succeeded() {
		b.logger.Info("published to all targets", "targets", len(targets), "media_url", hostedURL)
	} else {
		b.logger.Warn("publish finished with failures", "summary", report.Summary())
	}
	return report, nil
}

func (b *Broker) hostedURL(ctx context.Context, a Artifact) (string, error) {
	if a.LocalPath == "" && a.RemoteURL == "" {
		return "", fmt.Errorf("%w: artifact has neither a local path nor a remote url", ErrUploadFailed)
	}

	b.uploadMu.Lock()
	defer b.uploadMu.Unlock()

	key := a.cacheKey()
	if u, ok := b.hosted[key]; ok {
		b.logger.Debug("reusing hosted media", "media_url", u)
		return u, nil
	}

	source := a.RemoteURL
	if source == "" {
		if b.stager == nil {
			return "", fmt.Errorf("%w: local artifact %s and no stager configured", ErrUploadFailed, a.LocalPath)
		}
		n, err := b.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
			u, err := b.stager.Stage(ctx, a.LocalPath)
			source = u
			return err
		})
		if err != nil {
			return "", fmt.Errorf("%w: stage %s after %d attempt(s): %w", ErrUploadFailed, a.LocalPath, n, err)
		}
		b.logger.Info("staged artifact", "path", a.LocalPath, "url", source)
	}

	var hosted string
	n, err := b.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		u, err := b.host.UploadMedia(ctx, source)
		hosted = u
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload after %d attempt(s): %w", ErrUploadFailed, n, err)
	}
	b.hosted[key] = hosted
	b.logger.Info("uploaded media", "source", source, "media_url", hosted, "attempts", n)
	return hosted, nil
}

func (b *Broker) publishOne(ctx context.Context, t Target, req Request, hostedURL string) Result {
	if t.AccountID == "" {
		t.AccountID = b.opts.Accounts[t.Platform]
	}
	logger := b.logger.With("platform", t.Platform, "destination", t.DestinationID)
	res := Result{Target: t}

	fail := func(attempts int, err error) Result {
		res.Status = StatusFailure
		res.Attempts = attempts
		res.Reason = err.Error()
		logger.Error("publish failed", "attempts", attempts, "err", err)
		return res
	}

	payload, err := BuildPayload(t, req.Text, b.opts.Payloads)
	if err != nil {
		return fail(0, err)
	}
	publisher := b.router.For(t.Platform)
	if publisher == nil {
		return fail(0, fmt.Errorf("%w: no publisher for %q", ErrUnsupportedPlatform, t.Platform))
	}

	key := deliveryKey{platform: t.Platform, destinationID: t.DestinationID, accountID: t.AccountID, hostedURL: hostedURL}
	c, owner, err := b.acquire(ctx, key)
	if err != nil {
		return fail(0, err)
	}
	if !owner {
		logger.Info("delivery already dispatched, skipping")
		res.Status = StatusSuccess
		res.Deduplicated = true
		return res
	}

	d := Delivery{
		Target:        t,
		Payload:       payload,
		Text:          req.Text,
		HostedURL:     hostedURL,
		LocalPath:     req.Artifact.LocalPath,
		ScheduledTime: req.ScheduledTime,
	}
	var rcpt *Receipt
	attempts, err := b.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			logger.Warn("retrying publish", "attempt", attempt)
		}
		r, err := publisher.Publish(ctx, d)
		rcpt = r
		return err
	})
	b.settle(key, c, err == nil)
	if err != nil {
		return fail(attempts, err)
	}

	res.Status = StatusSuccess
	res.Attempts = attempts
	res.Receipt = rcpt
	logger.Info("published", "attempts", attempts, "submission_id", receiptID(rcpt))
	return res
}

// acquire claims key for the caller. owner is false when another call
// already delivered it. A claim whose holder fails is released, and waiters
// try to claim it again.
func (b *Broker) acquire(ctx context.Context, key deliveryKey) (*claim, bool, error) {
	for {
		b.mu.Lock()
		c, held := b.dispatched[key]
		if !held {
			c = &claim{done: make(chan struct{})}
			b.dispatched[key] = c
			b.mu.Unlock()
			return c, true, nil
		}
		b.mu.Unlock()

		select {
		case <-c.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if c.ok {
			return c, false, nil
		}
	}
}

// settle records the holder's outcome and wakes waiters. A failed delivery
// is forgotten so a later call may send it.
func (b *Broker) settle(key deliveryKey, c *claim, ok bool) {
	b.mu.Lock()
	c.ok = ok
	if !ok {
		delete(b.dispatched, key)
	}
	close(c.done)
	b.mu.Unlock()
}

func receiptID(r *Receipt) string {
	if r == nil {
		return ""
	}
	return r.ID
}
