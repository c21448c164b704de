package roundservice

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/libroutine"
	"github.com/contenox/coffeehouse/libtracker"
	"github.com/google/uuid"
)

type autoChatState struct {
	cancel     context.CancelFunc
	cfg        AutoChatConfig
	roundsDone int
}

func (s *service) StartAutoChat(ctx context.Context, cfg AutoChatConfig) error {
	if cfg.Interval <= 0 {
		return ErrInvalidInterval
	}
	agents, err := s.agents.List(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return ErrNoAgents
	}

	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.auto != nil {
		return ErrAutoChatRunning
	}

	// The loop must outlive the request that started it; only the tracking
	// identifiers carry over.
	loopCtx, cancel := context.WithCancel(libtracker.CopyTrackingValues(ctx, context.Background()))
	state := &autoChatState{cancel: cancel, cfg: cfg}
	s.auto = state

	libroutine.GetGroup().StartLoop(loopCtx, &libroutine.LoopConfig{
		Key:          "autochat-" + uuid.NewString(),
		Threshold:    3,
		ResetTimeout: cfg.Interval,
		Interval:     cfg.Interval,
		Operation: func(ctx context.Context) error {
			return s.autoRound(ctx, state)
		},
	})
	return nil
}

func (s *service) StopAutoChat(ctx context.Context) error {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.auto == nil {
		return ErrAutoChatNotRunning
	}
	s.auto.cancel()
	s.auto = nil
	return nil
}

func (s *service) AutoChatStatus(ctx context.Context) (Status, error) {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.auto == nil {
		return Status{}, nil
	}
	return Status{
		Running:    true,
		RoundsDone: s.auto.roundsDone,
		RoundLimit: s.auto.cfg.RoundLimit,
		Interval:   s.auto.cfg.Interval,
	}, nil
}

// autoRound runs one agents-only group round. There is no synthetic user
// message; every agent replies to the conversation as it stands.
func (s *service) autoRound(ctx context.Context, state *autoChatState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	// A stop may have landed while we waited for the round mutex.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.autoMu.Lock()
	if s.auto != state {
		s.autoMu.Unlock()
		return nil
	}
	s.autoMu.Unlock()

	agents, err := s.agents.List(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return ErrNoAgents
	}

	groupMsgs, err := s.store.MessagesIn(ctx, conversationstore.BucketGroup)
	if err != nil {
		return err
	}
	var lastTs time.Time
	if len(groupMsgs) > 0 {
		lastTs = groupMsgs[len(groupMsgs)-1].Timestamp
	}

	if _, err := s.runGroupRound(ctx, agents, lastTs); err != nil {
		return err
	}

	s.autoMu.Lock()
	if s.auto != state {
		s.autoMu.Unlock()
		return nil
	}
	state.roundsDone++
	limitReached := state.cfg.RoundLimit > 0 && state.roundsDone >= state.cfg.RoundLimit
	if limitReached {
		state.cancel()
		s.auto = nil
	}
	roundsDone := state.roundsDone
	s.autoMu.Unlock()

	if limitReached {
		// The loop context is already cancelled at this point.
		s.publishAutoChatDone(context.WithoutCancel(ctx), roundsDone, state.cfg.RoundLimit)
	}
	return nil
}

func (s *service) publishAutoChatDone(ctx context.Context, roundsDone, roundLimit int) {
	payload, err := json.Marshal(AutoChatDoneEvent{RoundsDone: roundsDone, RoundLimit: roundLimit})
	if err != nil {
		slog.Error("failed to marshal auto-chat done event", "error", err)
		return
	}
	if err := s.ps.Publish(ctx, SubjectAutoChatDone, payload); err != nil {
		slog.Error("failed to publish auto-chat done event", "error", err)
	}
}
