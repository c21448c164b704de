package libroutine

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pool manages keyed background loops, one Routine per key. Loops are
// deduplicated by key; a second StartLoop for an active key is a no-op.
type Pool struct {
	mu       sync.Mutex
	managers map[string]*Routine
	active   map[string]struct{}
	triggers map[string]chan struct{}
}

var (
	group     *Pool
	groupOnce sync.Once
)

// GetGroup returns the process-wide loop pool.
func GetGroup() *Pool {
	groupOnce.Do(func() {
		group = &Pool{
			managers: make(map[string]*Routine),
			active:   make(map[string]struct{}),
			triggers: make(map[string]chan struct{}),
		}
	})
	return group
}

// LoopConfig describes one managed loop.
type LoopConfig struct {
	Key          string
	Threshold    int
	ResetTimeout time.Duration
	Interval     time.Duration
	Operation    func(ctx context.Context) error
}

// StartLoop starts the loop for cfg.Key unless one is already active.
// The loop stops when ctx is done and the key becomes free again.
func (p *Pool) StartLoop(ctx context.Context, cfg *LoopConfig) {
	p.mu.Lock()
	if _, running := p.active[cfg.Key]; running {
		p.mu.Unlock()
		return
	}
	manager, ok := p.managers[cfg.Key]
	if !ok {
		manager = NewRoutine(cfg.Threshold, cfg.ResetTimeout)
		p.managers[cfg.Key] = manager
	}
	trigger := make(chan struct{}, 1)
	p.triggers[cfg.Key] = trigger
	p.active[cfg.Key] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.active, cfg.Key)
			delete(p.triggers, cfg.Key)
			p.mu.Unlock()
		}()
		manager.Loop(ctx, cfg.Interval, trigger, cfg.Operation, func(err error) {
			log.Printf("libroutine: loop %q: %v", cfg.Key, err)
		})
	}()
}

// IsLoopActive reports whether a loop is running for key.
func (p *Pool) IsLoopActive(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[key]
	return ok
}

// ForceUpdate triggers an immediate execution of the loop for key.
func (p *Pool) ForceUpdate(key string) {
	p.mu.Lock()
	trigger, ok := p.triggers[key]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// GetManager returns the Routine for key, or nil if none exists yet.
func (p *Pool) GetManager(key string) *Routine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.managers[key]
}
