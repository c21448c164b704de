// Package conversationstore holds the bucket map at the heart of the
// coffeehouse: one shared group bucket plus one private bucket per agent.
// Buckets are append-only; clearing replaces a bucket wholesale but
// individual messages are never edited or removed.
package conversationstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the conversation state boundary. All reads return copies;
// mutating a returned slice never affects the store.
type Store interface {
	// SwitchMode sets the active bucket for subsequent sends. The bucket
	// is created if it does not exist yet.
	SwitchMode(ctx context.Context, bucket string) error
	CurrentMode(ctx context.Context) (string, error)

	// Append commits a message to the named bucket, creating the bucket
	// on demand. Missing ID and timestamp are filled in. The committed
	// message is returned.
	Append(ctx context.Context, bucket string, msg Message) (Message, error)

	// MessagesIn returns the bucket's messages in insertion order. An
	// unknown bucket reads as empty and is not created.
	MessagesIn(ctx context.Context, bucket string) ([]Message, error)
	// CurrentMessages returns the messages of the active mode's bucket.
	CurrentMessages(ctx context.Context) ([]Message, error)
	// MessagesForAgent returns everything the agent can see: its private
	// bucket plus the group bucket, merged in timestamp order. Equal
	// timestamps order the group entry first.
	MessagesForAgent(ctx context.Context, agentID string) ([]Message, error)

	Buckets(ctx context.Context) ([]string, error)
	Export(ctx context.Context) (State, error)
	// Import replaces the full state. The group bucket is created when
	// absent; a mode pointing at a missing bucket falls back to group.
	Import(ctx context.Context, state State) error

	ClearBucket(ctx context.Context, bucket string) error
	ClearAll(ctx context.Context) error
}

type store struct {
	mu      sync.RWMutex
	mode    string
	buckets map[string][]Message
}

// New returns an empty in-memory store with the group bucket present and
// the mode set to group.
func New() Store {
	return &store{
		mode:    BucketGroup,
		buckets: map[string][]Message{BucketGroup: nil},
	}
}

func (s *store) SwitchMode(ctx context.Context, bucket string) error {
	if bucket == "" {
		return ErrEmptyBucket
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = nil
	}
	s.mode = bucket
	return nil
}

func (s *store) CurrentMode(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, nil
}

func (s *store) Append(ctx context.Context, bucket string, msg Message) (Message, error) {
	if bucket == "" {
		return Message{}, ErrEmptyBucket
	}
	if msg.Content == "" {
		return Message{}, ErrEmptyContent
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.buckets[bucket] = append(s.buckets[bucket], msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *store) MessagesIn(ctx context.Context, bucket string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.buckets[bucket]), nil
}

func (s *store) CurrentMessages(ctx context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.buckets[s.mode]), nil
}

func (s *store) MessagesForAgent(ctx context.Context, agentID string) ([]Message, error) {
	// The group id names the shared bucket, not an agent; its view is the
	// shared bucket itself rather than a union with it.
	if agentID == BucketGroup {
		return s.MessagesIn(ctx, BucketGroup)
	}
	s.mu.RLock()
	// Group entries are placed first so a stable sort keeps them ahead of
	// private entries with the same timestamp.
	merged := make([]Message, 0, len(s.buckets[BucketGroup])+len(s.buckets[agentID]))
	merged = append(merged, s.buckets[BucketGroup]...)
	merged = append(merged, s.buckets[agentID]...)
	s.mu.RUnlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged, nil
}

func (s *store) Buckets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *store) Export(ctx context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := State{Mode: s.mode, Buckets: make(map[string][]Message, len(s.buckets))}
	for name, msgs := range s.buckets {
		out.Buckets[name] = copyMessages(msgs)
	}
	return out, nil
}

func (s *store) Import(ctx context.Context, state State) error {
	buckets := make(map[string][]Message, len(state.Buckets)+1)
	for name, msgs := range state.Buckets {
		if name == "" {
			continue
		}
		buckets[name] = copyMessages(msgs)
	}
	if _, ok := buckets[BucketGroup]; !ok {
		buckets[BucketGroup] = nil
	}
	mode := state.Mode
	if _, ok := buckets[mode]; !ok {
		mode = BucketGroup
	}

	s.mu.Lock()
	s.buckets = buckets
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *store) ClearBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		return ErrBucketNotFound
	}
	s.buckets[bucket] = nil
	return nil
}

func (s *store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = map[string][]Message{BucketGroup: nil}
	s.mode = BucketGroup
	return nil
}

func copyMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

var _ Store = (*store)(nil)
