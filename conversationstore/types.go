package conversationstore

import (
	"errors"
	"time"
)

// Sentinel participants. Agents are addressed by their ID; these two names
// are reserved and never valid agent IDs.
const (
	SenderUser        = "user"
	RecipientEveryone = "everyone"
)

// BucketGroup is the shared bucket every agent can see. It always exists.
const BucketGroup = "group"

var (
	ErrBucketNotFound = errors.New("conversationstore: bucket not found")
	ErrEmptyBucket    = errors.New("conversationstore: bucket name is required")
	ErrEmptyContent   = errors.New("conversationstore: message content is required")
)

// Message is a single utterance in a conversation bucket.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the full exportable conversation state: every bucket plus the
// active chat mode. Mode is either BucketGroup or an agent ID.
type State struct {
	Mode    string               `json:"mode"`
	Buckets map[string][]Message `json:"buckets"`
}
