package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/crucible-dev/crucible/internal/port/broadcast"
	"github.com/crucible-dev/crucible/internal/port/messagequeue"
)

// EventPublisher mirrors orchestration events onto JetStream subjects so
// off-process consumers (workers, dashboards) see the same stream as
// WebSocket clients. Events without a mapped subject are dropped.
type EventPublisher struct {
	queue messagequeue.Queue
}

// NewEventPublisher creates a broadcaster that publishes events to NATS.
func NewEventPublisher(queue messagequeue.Queue) *EventPublisher {
	return &EventPublisher{queue: queue}
}

// BroadcastEvent implements the broadcast port. Publish failures are logged
// and swallowed; event mirroring never fails the operation that emitted it.
func (p *EventPublisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	subject, ok := subjectFor(eventType)
	if !ok {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("event payload marshal failed", "event", eventType, "error", err)
		return
	}
	if err := p.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("event publish failed", "event", eventType, "subject", subject, "error", err)
	}
}

func subjectFor(eventType string) (string, bool) {
	switch eventType {
	case broadcast.EventTaskProgress:
		return messagequeue.SubjectTaskProgress, true
	case broadcast.EventActionState:
		return messagequeue.SubjectActionState, true
	default:
		return "", false
	}
}
