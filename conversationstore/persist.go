package conversationstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contenox/coffeehouse/libcipher"
	"github.com/contenox/coffeehouse/libkvstore"
)

const (
	// KeyConversations is the KV key holding the JSON bucket map.
	KeyConversations = "conversations"
	// KeyConversationMode is the KV key holding the active mode.
	KeyConversationMode = "conversation-mode"
)

// PersistOption configures the persistence decorator.
type PersistOption func(*persistentStore)

// WithEncryptionKey encrypts the persisted bucket blob at rest with
// AES-GCM. The key must come from libcipher.DeriveKey.
func WithEncryptionKey(key []byte) PersistOption {
	return func(p *persistentStore) {
		p.encKey = key
	}
}

type persistentStore struct {
	inner  Store
	kv     libkvstore.KVExec
	encKey []byte
}

// WithPersistence wraps a store so that every successful mutation writes
// the full state back to the key-value store. Call Load on the returned
// store to rehydrate before serving traffic.
func WithPersistence(inner Store, kv libkvstore.KVExec, opts ...PersistOption) *PersistentStore {
	p := &persistentStore{inner: inner, kv: kv}
	for _, opt := range opts {
		opt(p)
	}
	return &PersistentStore{p}
}

// PersistentStore is a Store that mirrors state into a KV backend.
type PersistentStore struct {
	*persistentStore
}

// Load rehydrates the wrapped store from the KV backend. Missing keys
// leave the store untouched; a malformed or undecryptable blob resets to
// a fresh group-only conversation rather than failing startup.
func (p *PersistentStore) Load(ctx context.Context) error {
	raw, err := p.kv.Get(ctx, KeyConversations)
	if errors.Is(err, libkvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	blob := []byte(raw)
	if len(p.encKey) > 0 {
		var sealed []byte
		if err := json.Unmarshal(raw, &sealed); err == nil {
			if plain, derr := libcipher.Decrypt(sealed, p.encKey); derr == nil {
				blob = plain
			} else {
				slog.Warn("persisted conversation blob failed to decrypt, starting fresh", "error", derr)
				return p.inner.ClearAll(ctx)
			}
		} else {
			slog.Warn("persisted conversation blob is not a sealed payload, starting fresh", "error", err)
			return p.inner.ClearAll(ctx)
		}
	}

	var buckets map[string][]Message
	if err := json.Unmarshal(blob, &buckets); err != nil {
		slog.Warn("persisted conversation state is malformed, starting fresh", "error", err)
		return p.inner.ClearAll(ctx)
	}

	mode := BucketGroup
	if rawMode, err := p.kv.Get(ctx, KeyConversationMode); err == nil {
		var m string
		if err := json.Unmarshal(rawMode, &m); err == nil && m != "" {
			mode = m
		}
	}

	return p.inner.Import(ctx, State{Mode: mode, Buckets: buckets})
}

func (p *persistentStore) save(ctx context.Context) error {
	state, err := p.inner.Export(ctx)
	if err != nil {
		return fmt.Errorf("export for persistence: %w", err)
	}
	blob, err := json.Marshal(state.Buckets)
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}
	if len(p.encKey) > 0 {
		sealed, err := libcipher.Encrypt(blob, p.encKey)
		if err != nil {
			return fmt.Errorf("encrypt conversations: %w", err)
		}
		blob, err = json.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("marshal sealed conversations: %w", err)
		}
	}
	if err := p.kv.Set(ctx, KeyConversations, blob); err != nil {
		return fmt.Errorf("persist conversations: %w", err)
	}
	mode, err := json.Marshal(state.Mode)
	if err != nil {
		return fmt.Errorf("marshal mode: %w", err)
	}
	if err := p.kv.Set(ctx, KeyConversationMode, mode); err != nil {
		return fmt.Errorf("persist mode: %w", err)
	}
	return nil
}

func (p *persistentStore) SwitchMode(ctx context.Context, bucket string) error {
	if err := p.inner.SwitchMode(ctx, bucket); err != nil {
		return err
	}
	return p.save(ctx)
}

func (p *persistentStore) CurrentMode(ctx context.Context) (string, error) {
	return p.inner.CurrentMode(ctx)
}

func (p *persistentStore) Append(ctx context.Context, bucket string, msg Message) (Message, error) {
	committed, err := p.inner.Append(ctx, bucket, msg)
	if err != nil {
		return Message{}, err
	}
	if err := p.save(ctx); err != nil {
		return committed, err
	}
	return committed, nil
}

func (p *persistentStore) MessagesIn(ctx context.Context, bucket string) ([]Message, error) {
	return p.inner.MessagesIn(ctx, bucket)
}

func (p *persistentStore) CurrentMessages(ctx context.Context) ([]Message, error) {
	return p.inner.CurrentMessages(ctx)
}

func (p *persistentStore) MessagesForAgent(ctx context.Context, agentID string) ([]Message, error) {
	return p.inner.MessagesForAgent(ctx, agentID)
}

func (p *persistentStore) Buckets(ctx context.Context) ([]string, error) {
	return p.inner.Buckets(ctx)
}

func (p *persistentStore) Export(ctx context.Context) (State, error) {
	return p.inner.Export(ctx)
}

func (p *persistentStore) Import(ctx context.Context, state State) error {
	if err := p.inner.Import(ctx, state); err != nil {
		return err
	}
	return p.save(ctx)
}

func (p *persistentStore) ClearBucket(ctx context.Context, bucket string) error {
	if err := p.inner.ClearBucket(ctx, bucket); err != nil {
		return err
	}
	return p.save(ctx)
}

func (p *persistentStore) ClearAll(ctx context.Context) error {
	if err := p.inner.ClearAll(ctx); err != nil {
		return err
	}
	return p.save(ctx)
}

var _ Store = (*PersistentStore)(nil)
