package archivestore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// ArchivedMessage is one mirrored conversation message. Payload is the
// JSON-encoded conversationstore.Message.
type ArchivedMessage struct {
	ID      string    `json:"id"`
	Bucket  string    `json:"bucket"`
	Payload []byte    `json:"payload"`
	AddedAt time.Time `json:"added_at"`
}

// Store defines the data access interface for the message archive.
type Store interface {
	// Bucket index operations
	CreateBucketIndex(ctx context.Context, bucket string) error
	DeleteBucketIndex(ctx context.Context, bucket string) error
	ListBuckets(ctx context.Context) ([]string, error)

	// Message operations
	AppendMessages(ctx context.Context, messages ...*ArchivedMessage) error
	DeleteMessages(ctx context.Context, bucket string) error
	ListMessages(ctx context.Context, bucket string) ([]*ArchivedMessage, error)
	LastMessage(ctx context.Context, bucket string) (*ArchivedMessage, error)
	CountMessages(ctx context.Context, bucket string) (int, error)
}
