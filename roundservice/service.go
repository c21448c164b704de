// Package roundservice orchestrates chat rounds: it commits the user's
// message, fans the conversation out to every addressed agent, and commits
// the replies in a deterministic order. One round at a time; a failing
// agent never blocks the others.
package roundservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/libbus"
	"github.com/contenox/coffeehouse/libtracker"
)

type Service interface {
	// Send commits the user message and runs one round. Recipient is
	// RecipientEveryone for a group round, an agent ID for a private
	// exchange, or empty to follow the current mode. A manual send stops
	// a running auto-chat first.
	Send(ctx context.Context, recipient, content string) ([]Reply, error)

	StartAutoChat(ctx context.Context, cfg AutoChatConfig) error
	StopAutoChat(ctx context.Context) error
	AutoChatStatus(ctx context.Context) (Status, error)
}

type service struct {
	store    conversationstore.Store
	agents   agentservice.Service
	resolver agentcall.Resolver
	ps       libbus.Messenger
	tracker  libtracker.ActivityTracker

	// callTimeout bounds a single agent invocation.
	callTimeout time.Duration

	// roundMu serializes rounds: manual sends and auto-chat rounds never
	// overlap.
	roundMu sync.Mutex

	autoMu sync.Mutex
	auto   *autoChatState
}

func New(
	store conversationstore.Store,
	agents agentservice.Service,
	resolver agentcall.Resolver,
	ps libbus.Messenger,
	tracker libtracker.ActivityTracker,
	callTimeout time.Duration,
) Service {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &service{
		store:       store,
		agents:      agents,
		resolver:    resolver,
		ps:          ps,
		tracker:     tracker,
		callTimeout: callTimeout,
	}
}

func (s *service) Send(ctx context.Context, recipient, content string) ([]Reply, error) {
	if content == "" {
		return nil, conversationstore.ErrEmptyContent
	}
	// A manual send takes over from the agents-only loop.
	if err := s.StopAutoChat(ctx); err != nil && err != ErrAutoChatNotRunning {
		return nil, err
	}

	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	if recipient == "" {
		mode, err := s.store.CurrentMode(ctx)
		if err != nil {
			return nil, err
		}
		if mode == conversationstore.BucketGroup {
			recipient = conversationstore.RecipientEveryone
		} else {
			recipient = mode
		}
	}

	if recipient == conversationstore.RecipientEveryone {
		return s.groupRound(ctx, content)
	}
	return s.privateExchange(ctx, recipient, content)
}

// groupRound commits the user message to the group bucket, snapshots each
// agent's view before any reply lands, invokes all agents concurrently on
// their snapshots, and commits replies in registry order.
func (s *service) groupRound(ctx context.Context, content string) ([]Reply, error) {
	if err := s.store.SwitchMode(ctx, conversationstore.BucketGroup); err != nil {
		return nil, err
	}
	userMsg, err := s.store.Append(ctx, conversationstore.BucketGroup, conversationstore.Message{
		Sender:    conversationstore.SenderUser,
		Recipient: conversationstore.RecipientEveryone,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}

	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return []Reply{}, nil
	}
	return s.runGroupRound(ctx, agents, userMsg.Timestamp)
}

// runGroupRound executes the fan-out for an already committed trigger.
// lastTs is the timestamp every reply must land after.
func (s *service) runGroupRound(ctx context.Context, agents []agentservice.Agent, lastTs time.Time) ([]Reply, error) {
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}

	// Snapshot isolation: every agent replies to the state as of the
	// round start, not to replies committed mid-round.
	snapshots := make([][]conversationstore.Message, len(agents))
	for i, agent := range agents {
		snapshot, err := s.store.MessagesForAgent(ctx, agent.ID)
		if err != nil {
			return nil, err
		}
		snapshots[i] = snapshot
	}

	type result struct {
		content string
		err     error
	}
	results := make([]result, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		if ctx.Err() != nil {
			results[i] = result{err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, agent agentservice.Agent) {
			defer wg.Done()
			content, err := s.invoke(ctx, agent, snapshots[i], names)
			results[i] = result{content: content, err: err}
		}(i, agent)
	}
	wg.Wait()

	// Commit phase: registry order, strictly increasing timestamps.
	// Resolved replies commit even when the round was cancelled mid-way,
	// so the commit must not ride on the cancelled context.
	commitCtx := context.WithoutCancel(ctx)
	replies := make([]Reply, 0, len(agents))
	for i, agent := range agents {
		if results[i].err != nil {
			s.reportAgentError(commitCtx, agent, results[i].err)
			replies = append(replies, Reply{AgentID: agent.ID, AgentName: agent.Name, Error: results[i].err.Error()})
			continue
		}
		ts := time.Now().UTC()
		if !ts.After(lastTs) {
			ts = lastTs.Add(time.Millisecond)
		}
		committed, err := s.store.Append(commitCtx, conversationstore.BucketGroup, conversationstore.Message{
			Sender:    agent.ID,
			Recipient: conversationstore.RecipientEveryone,
			Content:   results[i].content,
			Timestamp: ts,
		})
		if err != nil {
			return replies, err
		}
		lastTs = committed.Timestamp
		replies = append(replies, Reply{AgentID: agent.ID, AgentName: agent.Name, Message: &committed})
	}
	return replies, nil
}

// privateExchange runs a one-on-one turn in the agent's private bucket.
// The agent sees its live visibility union, private plus group.
func (s *service) privateExchange(ctx context.Context, agentID, content string) ([]Reply, error) {
	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SwitchMode(ctx, agent.ID); err != nil {
		return nil, err
	}
	userMsg, err := s.store.Append(ctx, agent.ID, conversationstore.Message{
		Sender:    conversationstore.SenderUser,
		Recipient: agent.ID,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}

	visible, err := s.store.MessagesForAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	reply, err := s.invoke(ctx, agent, visible, map[string]string{agent.ID: agent.Name})
	if err != nil {
		s.reportAgentError(ctx, agent, err)
		return []Reply{{AgentID: agent.ID, AgentName: agent.Name, Error: err.Error()}}, nil
	}

	ts := time.Now().UTC()
	if !ts.After(userMsg.Timestamp) {
		ts = userMsg.Timestamp.Add(time.Millisecond)
	}
	// A resolved reply commits even if the request died during the call.
	committed, err := s.store.Append(context.WithoutCancel(ctx), agent.ID, conversationstore.Message{
		Sender:    agent.ID,
		Recipient: conversationstore.SenderUser,
		Content:   reply,
		Timestamp: ts,
	})
	if err != nil {
		return nil, err
	}
	return []Reply{{AgentID: agent.ID, AgentName: agent.Name, Message: &committed}}, nil
}

func (s *service) invoke(ctx context.Context, agent agentservice.Agent, visible []conversationstore.Message, names map[string]string) (string, error) {
	client, err := s.resolver.Resolve(agent)
	if err != nil {
		return "", err
	}
	// A call that has started runs to completion or its timeout. Stopping
	// a round only takes effect at round boundaries, so the call context
	// is detached from the caller's cancellation.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
	defer cancel()
	transcript := agentcall.Transcript(agent.ID, agent.Persona, visible, names)
	reply, err := client.Chat(callCtx, transcript)
	if err != nil {
		return "", fmt.Errorf("agent %s (%s) failed: %w", agent.Name, agent.ID, err)
	}
	return reply, nil
}

func (s *service) reportAgentError(ctx context.Context, agent agentservice.Agent, callErr error) {
	reportErr, _, end := s.tracker.Start(ctx, "agent_invocation", "round", "agent_id", agent.ID)
	defer end()
	reportErr(callErr)

	payload, err := json.Marshal(AgentErrorEvent{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Error:     callErr.Error(),
	})
	if err != nil {
		slog.Error("failed to marshal agent error event", "error", err)
		return
	}
	if err := s.ps.Publish(ctx, SubjectAgentError, payload); err != nil {
		slog.Error("failed to publish agent error event", "error", err)
	}
}

var _ Service = (*service)(nil)
