package conversationstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/contenox/coffeehouse/libbus"
)

// SubjectMessageAdded carries a MessageAddedEvent for every committed
// message. The archive mirror and the SSE feed subscribe to it.
const SubjectMessageAdded = "coffeehouse.message.added"

// MessageAddedEvent is the payload published on SubjectMessageAdded.
type MessageAddedEvent struct {
	Bucket  string  `json:"bucket"`
	Message Message `json:"message"`
}

type eventedStore struct {
	Store
	ps libbus.Messenger
}

// WithEvents wraps a store so every committed message is published on the
// bus. Publish failures are logged, never surfaced; the append already
// happened and the bus is a mirror, not the source of truth.
func WithEvents(inner Store, ps libbus.Messenger) Store {
	return &eventedStore{Store: inner, ps: ps}
}

func (s *eventedStore) Append(ctx context.Context, bucket string, msg Message) (Message, error) {
	committed, err := s.Store.Append(ctx, bucket, msg)
	if err != nil {
		return Message{}, err
	}
	payload, err := json.Marshal(MessageAddedEvent{Bucket: bucket, Message: committed})
	if err != nil {
		slog.Error("failed to marshal message event", "error", err)
		return committed, nil
	}
	if err := s.ps.Publish(ctx, SubjectMessageAdded, payload); err != nil {
		slog.Error("failed to publish message event", "subject", SubjectMessageAdded, "error", err)
	}
	return committed, nil
}

var _ Store = (*eventedStore)(nil)
