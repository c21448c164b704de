package libkvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// valkeyManager implements KVManager on a Valkey connection.
type valkeyManager struct {
	client    valkey.Client
	opTimeout time.Duration
}

// NewManager connects to Valkey. opTimeout bounds every individual
// operation issued through the returned executors.
func NewManager(cfg Config, opTimeout time.Duration) (KVManager, error) {
	if cfg.KVAddr == "" {
		return nil, fmt.Errorf("libkvstore: KV address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.KVAddr},
		Password:    cfg.KVPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("libkvstore: failed to connect: %w", err)
	}
	return &valkeyManager{client: client, opTimeout: opTimeout}, nil
}

func (m *valkeyManager) Executor(ctx context.Context) (KVExec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &valkeyExec{client: m.client, opTimeout: m.opTimeout}, nil
}

func (m *valkeyManager) Close() error {
	m.client.Close()
	return nil
}

type valkeyExec struct {
	client    valkey.Client
	opTimeout time.Duration
}

func (e *valkeyExec) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.opTimeout)
}

func (e *valkeyExec) Get(ctx context.Context, key string) (json.RawMessage, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	resp := e.client.Do(ctx, e.client.B().Get().Key(key).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("libkvstore: get %q failed: %w", key, err)
	}
	return json.RawMessage(data), nil
}

func (e *valkeyExec) Set(ctx context.Context, key string, value json.RawMessage) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.client.Do(ctx, e.client.B().Set().Key(key).Value(string(value)).Build()).Error(); err != nil {
		return fmt.Errorf("libkvstore: set %q failed: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	cmd := e.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("libkvstore: set %q with ttl failed: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) Delete(ctx context.Context, key string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.client.Do(ctx, e.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("libkvstore: delete %q failed: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	n, err := e.client.Do(ctx, e.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("libkvstore: exists %q failed: %w", key, err)
	}
	return n > 0, nil
}

func (e *valkeyExec) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	keys, err := e.client.Do(ctx, e.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkvstore: keys %q failed: %w", pattern, err)
	}
	return keys, nil
}

func (e *valkeyExec) ListPush(ctx context.Context, key string, value json.RawMessage) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	cmd := e.client.B().Lpush().Key(key).Element(string(value)).Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("libkvstore: list push %q failed: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	items, err := e.client.Do(ctx, e.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkvstore: list range %q failed: %w", key, err)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

func (e *valkeyExec) ListRPop(ctx context.Context, key string) (json.RawMessage, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	data, err := e.client.Do(ctx, e.client.B().Rpop().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("libkvstore: list rpop %q failed: %w", key, err)
	}
	return json.RawMessage(data), nil
}

func (e *valkeyExec) ListLength(ctx context.Context, key string) (int64, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	n, err := e.client.Do(ctx, e.client.B().Llen().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("libkvstore: list length %q failed: %w", key, err)
	}
	return n, nil
}

func (e *valkeyExec) SetAdd(ctx context.Context, key string, member json.RawMessage) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	cmd := e.client.B().Sadd().Key(key).Member(string(member)).Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("libkvstore: set add %q failed: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) SetMembers(ctx context.Context, key string) ([]json.RawMessage, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	members, err := e.client.Do(ctx, e.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkvstore: set members %q failed: %w", key, err)
	}
	out := make([]json.RawMessage, 0, len(members))
	for _, m := range members {
		out = append(out, json.RawMessage(m))
	}
	return out, nil
}

var (
	_ KVManager = (*valkeyManager)(nil)
	_ KVExec    = (*valkeyExec)(nil)
)
