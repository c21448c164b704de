package libkvstore

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

// InMem is an in-memory implementation of KVManager/KVExec for local
// single-process mode and unit tests. No Valkey, no network.
type InMem struct {
	mu      sync.RWMutex
	values  map[string]inmemEntry
	lists   map[string][]json.RawMessage
	sets    map[string]map[string]struct{}
	nowFunc func() time.Time
}

type inmemEntry struct {
	value     json.RawMessage
	expiresAt time.Time // zero means no expiry
}

// NewInMem returns a fresh in-memory key-value store.
func NewInMem() *InMem {
	return &InMem{
		values:  make(map[string]inmemEntry),
		lists:   make(map[string][]json.RawMessage),
		sets:    make(map[string]map[string]struct{}),
		nowFunc: time.Now,
	}
}

// Executor returns the store itself; InMem is both manager and executor.
func (s *InMem) Executor(ctx context.Context) (KVExec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *InMem) Close() error { return nil }

func (s *InMem) Get(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	entry, ok := s.values[key]
	s.mu.RUnlock()
	if !ok || s.expired(entry) {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (s *InMem) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

func (s *InMem) SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	entry := inmemEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = s.nowFunc().Add(ttl)
	}
	s.mu.Lock()
	s.values[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *InMem) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	delete(s.lists, key)
	delete(s.sets, key)
	s.mu.Unlock()
	return nil
}

func (s *InMem) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.values[key]; ok && !s.expired(entry) {
		return true, nil
	}
	if _, ok := s.lists[key]; ok {
		return true, nil
	}
	_, ok := s.sets[key]
	return ok, nil
}

func (s *InMem) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k, entry := range s.values {
		if s.expired(entry) {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	for k := range s.lists {
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	for k := range s.sets {
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *InMem) ListPush(ctx context.Context, key string, value json.RawMessage) error {
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	s.mu.Lock()
	// LPUSH semantics: newest element first.
	s.lists[key] = append([]json.RawMessage{stored}, s.lists[key]...)
	s.mu.Unlock()
	return nil
}

func (s *InMem) ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		item := make(json.RawMessage, len(v))
		copy(item, v)
		out = append(out, item)
	}
	return out, nil
}

func (s *InMem) ListRPop(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	last := list[len(list)-1]
	s.lists[key] = list[:len(list)-1]
	return last, nil
}

func (s *InMem) ListLength(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.lists[key])), nil
}

func (s *InMem) SetAdd(ctx context.Context, key string, member json.RawMessage) error {
	s.mu.Lock()
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	s.sets[key][string(member)] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *InMem) SetMembers(ctx context.Context, key string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]json.RawMessage, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, json.RawMessage(m))
	}
	return members, nil
}

func (s *InMem) expired(entry inmemEntry) bool {
	return !entry.expiresAt.IsZero() && s.nowFunc().After(entry.expiresAt)
}

var (
	_ KVManager = (*InMem)(nil)
	_ KVExec    = (*InMem)(nil)
)
