package bus

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tendant/simple-reels/pkg/schema"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) PublishJSON(subject string, v any) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, b)
	return nil
}

func TestEventSinkSubjects(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewEventSink(pub, "reels.runs.done", slog.New(slog.NewTextHandler(io.Discard, nil)))

	sink.StageChanged(schema.StageEvent{RunID: "r1", Stage: schema.StageAwaitingRender})
	sink.RunFinished(schema.RunDone{ID: "r1", Stage: schema.StageDone})

	if len(pub.subjects) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.subjects))
	}
	if pub.subjects[0] != "reels.runs.done.lifecycle" || pub.subjects[1] != "reels.runs.done" {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	var ev schema.StageEvent
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatalf("decode stage event: %v", err)
	}
	if ev.Stage != schema.StageAwaitingRender || ev.RunID != "r1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestEventSinkSwallowsPublishErrors(t *testing.T) {
	sink := NewEventSink(&recordingPublisher{err: errors.New("nats: connection closed")}, "s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink.StageChanged(schema.StageEvent{RunID: "r"})
	sink.RunFinished(schema.RunDone{ID: "r"})
}
