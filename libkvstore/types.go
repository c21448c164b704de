// Package libkvstore provides key-value storage behind a small executor
// interface. The coffeehouse persistence boundary (conversation buckets,
// current mode, agent registry) is stored as JSON documents; server mode
// uses Valkey, local single-process mode uses the in-memory store.
package libkvstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("libkvstore: not found")

// Config holds connection settings for the Valkey-backed manager.
type Config struct {
	KVAddr     string
	KVPassword string
}

// KVExec is the operation surface handed out by a KVManager.
// Values are JSON documents.
type KVExec interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	ListPush(ctx context.Context, key string, value json.RawMessage) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error)
	ListRPop(ctx context.Context, key string) (json.RawMessage, error)
	ListLength(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key string, member json.RawMessage) error
	SetMembers(ctx context.Context, key string) ([]json.RawMessage, error)
}

// KVManager owns a key-value connection and hands out executors.
type KVManager interface {
	Executor(ctx context.Context) (KVExec, error)
	Close() error
}
