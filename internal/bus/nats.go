// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-reels/pkg/schema"
)

type Client struct{ nc *nats.Conn }

func Connect(url, name string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

// Connected reports whether the connection is currently usable.
func (c *Client) Connected() bool { return c.nc != nil && c.nc.IsConnected() }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// QueueSubscribeJSON delivers each message to exactly one member of queue.
// Handlers get a context bounded by timeout; runs can take many minutes.
func (c *Client) QueueSubscribeJSON(subject, queue string, timeout time.Duration, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		handler(ctx, msg.Data)
	})
}

// JSONPublisher is satisfied by *Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// EventSink publishes run lifecycle events. Stage events go to
// <subject>.lifecycle and run summaries to <subject>.
type EventSink struct {
	pub     JSONPublisher
	subject string
	logger  *slog.Logger
}

func NewEventSink(pub JSONPublisher, subject string, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{pub: pub, subject: subject, logger: logger}
}

func (s *EventSink) StageChanged(ev schema.StageEvent) {
	if err := s.pub.PublishJSON(s.subject+".lifecycle", ev); err != nil {
		s.logger.Error("publish lifecycle event failed", "subject", s.subject, "stage", ev.Stage, "err", err)
	}
}

func (s *EventSink) RunFinished(ev schema.RunDone) {
	if err := s.pub.PublishJSON(s.subject, ev); err != nil {
		s.logger.Error("publish run result failed", "subject", s.subject, "id", ev.ID, "err", err)
	}
}
