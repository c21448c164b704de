package roundservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/libbus"
	"github.com/contenox/coffeehouse/libkvstore"
	"github.com/contenox/coffeehouse/roundservice"
	"github.com/stretchr/testify/require"
)

type chatFunc func(ctx context.Context, messages []agentcall.Message) (string, error)

func (f chatFunc) Chat(ctx context.Context, messages []agentcall.Message) (string, error) {
	return f(ctx, messages)
}

type fakeResolver struct {
	clients map[string]chatFunc
}

func (r *fakeResolver) Resolve(agent agentservice.Agent) (agentcall.ChatClient, error) {
	client, ok := r.clients[agent.ID]
	if !ok {
		return nil, fmt.Errorf("no fake client for agent %s", agent.ID)
	}
	return client, nil
}

type fixture struct {
	store    conversationstore.Store
	agents   agentservice.Service
	ps       libbus.Messenger
	resolver *fakeResolver
	service  roundservice.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ps := libbus.NewInMem()
	t.Cleanup(func() { ps.Close() })

	f := &fixture{
		store:    conversationstore.New(),
		agents:   agentservice.New(libkvstore.NewInMem()),
		ps:       ps,
		resolver: &fakeResolver{clients: map[string]chatFunc{}},
	}
	f.service = roundservice.New(f.store, f.agents, f.resolver, f.ps, nil, time.Second)
	return f
}

func (f *fixture) addAgent(t *testing.T, id, name string, chat chatFunc) {
	t.Helper()
	_, err := f.agents.Create(context.Background(), agentservice.Agent{
		ID: id, Name: name, Provider: "ollama", Model: "llama3",
	})
	require.NoError(t, err)
	f.resolver.clients[id] = chat
}

func reply(content string) chatFunc {
	return func(ctx context.Context, messages []agentcall.Message) (string, error) {
		return content, nil
	}
}

func TestRound_GroupSendCommitsUserMessageThenReplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("hello from A"))
	f.addAgent(t, "agent-b", "Bram", reply("hello from B"))

	replies, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, "agent-a", replies[0].AgentID)
	require.Equal(t, "agent-b", replies[1].AgentID)

	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Len(t, group, 3)
	require.Equal(t, conversationstore.SenderUser, group[0].Sender)
	require.Equal(t, "agent-a", group[1].Sender)
	require.Equal(t, "agent-b", group[2].Sender)

	require.True(t, group[1].Timestamp.After(group[0].Timestamp))
	require.True(t, group[2].Timestamp.After(group[1].Timestamp))
}

func TestRound_PrivateExchangeStaysInPrivateBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("noted"))
	f.addAgent(t, "agent-b", "Bram", reply("noted too"))

	_, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "hi")
	require.NoError(t, err)

	replies, err := f.service.Send(ctx, "agent-a", "secret")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Message)

	private, err := f.store.MessagesIn(ctx, "agent-a")
	require.NoError(t, err)
	require.Len(t, private, 2)

	forA, err := f.store.MessagesForAgent(ctx, "agent-a")
	require.NoError(t, err)
	require.Len(t, forA, 5)

	forB, err := f.store.MessagesForAgent(ctx, "agent-b")
	require.NoError(t, err)
	require.Len(t, forB, 3)

	mode, err := f.store.CurrentMode(ctx)
	require.NoError(t, err)
	require.Equal(t, "agent-a", mode)
}

func TestRound_SnapshotIsolationWithinGroupRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seen := func(ctx context.Context, messages []agentcall.Message) (string, error) {
		return fmt.Sprintf("saw %d", len(messages)), nil
	}
	f.addAgent(t, "agent-a", "Ada", seen)
	f.addAgent(t, "agent-b", "Bram", seen)

	replies, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 2)

	// Both agents replied to the round-start snapshot: just the user
	// message, not each other's replies.
	require.Equal(t, "saw 1", replies[0].Message.Content)
	require.Equal(t, "saw 1", replies[1].Message.Content)
}

func TestRound_FailingAgentDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", func(ctx context.Context, messages []agentcall.Message) (string, error) {
		return "", errors.New("backend unreachable")
	})
	f.addAgent(t, "agent-b", "Bram", reply("still here"))

	events := make(chan []byte, 4)
	sub, err := f.ps.Stream(ctx, roundservice.SubjectAgentError, events)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	replies, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.NotEmpty(t, replies[0].Error)
	require.Nil(t, replies[0].Message)
	require.NotNil(t, replies[1].Message)

	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Len(t, group, 2)
	require.Equal(t, "agent-b", group[1].Sender)

	select {
	case raw := <-events:
		var ev roundservice.AgentErrorEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		require.Equal(t, "agent-a", ev.AgentID)
		require.Contains(t, ev.Error, "backend unreachable")
	case <-time.After(time.Second):
		t.Fatal("no agent error event received")
	}
}

func TestRound_CommitOrderFollowsRegistryNotCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", func(ctx context.Context, messages []agentcall.Message) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "slow reply", nil
	})
	f.addAgent(t, "agent-b", "Bram", reply("fast reply"))

	_, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "hi")
	require.NoError(t, err)

	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Len(t, group, 3)
	require.Equal(t, "agent-a", group[1].Sender)
	require.Equal(t, "agent-b", group[2].Sender)
	require.True(t, group[2].Timestamp.After(group[1].Timestamp))
}

func TestRound_SendRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("ok"))

	_, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "")
	require.ErrorIs(t, err, conversationstore.ErrEmptyContent)

	_, err = f.service.Send(ctx, "ghost", "hi")
	require.ErrorIs(t, err, agentservice.ErrAgentNotFound)
}

func TestRound_EmptyRecipientFollowsCurrentMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("ok"))

	require.NoError(t, f.store.SwitchMode(ctx, "agent-a"))
	replies, err := f.service.Send(ctx, "", "hi again")
	require.NoError(t, err)
	require.Len(t, replies, 1)

	private, err := f.store.MessagesIn(ctx, "agent-a")
	require.NoError(t, err)
	require.Len(t, private, 2)

	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Empty(t, group)
}

func TestAutoChat_StopsAfterRoundLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("ping"))
	f.addAgent(t, "agent-b", "Bram", reply("pong"))

	done := make(chan []byte, 1)
	sub, err := f.ps.Stream(ctx, roundservice.SubjectAutoChatDone, done)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{
		Interval:   10 * time.Millisecond,
		RoundLimit: 2,
	}))

	select {
	case raw := <-done:
		var ev roundservice.AutoChatDoneEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		require.Equal(t, 2, ev.RoundsDone)
		require.Equal(t, 2, ev.RoundLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("auto-chat did not finish")
	}

	status, err := f.service.AutoChatStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Running)

	// No user messages in an auto round: two rounds of two agents each.
	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Len(t, group, 4)
	for _, m := range group {
		require.NotEqual(t, conversationstore.SenderUser, m.Sender)
	}
}

func TestAutoChat_StartAndStopLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("ping"))

	require.ErrorIs(t, f.service.StopAutoChat(ctx), roundservice.ErrAutoChatNotRunning)

	err := f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{Interval: 0})
	require.ErrorIs(t, err, roundservice.ErrInvalidInterval)

	require.NoError(t, f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{
		Interval: time.Hour,
	}))
	err = f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{Interval: time.Hour})
	require.ErrorIs(t, err, roundservice.ErrAutoChatRunning)

	status, err := f.service.AutoChatStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Running)
	require.Equal(t, time.Hour, status.Interval)

	require.NoError(t, f.service.StopAutoChat(ctx))
	status, err = f.service.AutoChatStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Running)
}

func TestAutoChat_StopMidRoundCommitsResolvedReplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started := make(chan struct{}, 1)
	f.addAgent(t, "agent-a", "Ada", func(ctx context.Context, messages []agentcall.Message) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return "late reply", nil
		}
	})

	require.NoError(t, f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{
		Interval: time.Millisecond,
	}))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("agent call never started")
	}
	// Stop lands while the call is in flight; the round still finishes
	// and its reply commits.
	require.NoError(t, f.service.StopAutoChat(ctx))

	require.Eventually(t, func() bool {
		group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
		return err == nil && len(group) == 1
	}, 5*time.Second, 10*time.Millisecond)

	group, err := f.store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Equal(t, "agent-a", group[0].Sender)
	require.Equal(t, "late reply", group[0].Content)

	status, err := f.service.AutoChatStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Running)
}

func TestAutoChat_RequiresAgents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{Interval: time.Second})
	require.ErrorIs(t, err, roundservice.ErrNoAgents)
}

func TestAutoChat_ManualSendTakesOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addAgent(t, "agent-a", "Ada", reply("ping"))

	require.NoError(t, f.service.StartAutoChat(ctx, roundservice.AutoChatConfig{
		Interval: time.Hour,
	}))

	_, err := f.service.Send(ctx, conversationstore.RecipientEveryone, "my turn")
	require.NoError(t, err)

	status, err := f.service.AutoChatStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Running)
}
