package chatapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/internal/chatapi"
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
	replies map[string]chatFunc
}

func (r *fakeResolver) Resolve(agent agentservice.Agent) (agentcall.ChatClient, error) {
	return r.replies[agent.ID], nil
}

func setupServer(t *testing.T) (*httptest.Server, conversationstore.Store, agentservice.Service) {
	t.Helper()
	ctx := context.Background()

	kv, err := libkvstore.NewInMem().Executor(ctx)
	require.NoError(t, err)
	agents := agentservice.New(kv)
	store := conversationstore.New()

	a, err := agents.Create(ctx, agentservice.Agent{
		ID: "agent-a", Name: "Alpha", Provider: "ollama", Model: "m",
	})
	require.NoError(t, err)

	resolver := &fakeResolver{replies: map[string]chatFunc{
		a.ID: func(context.Context, []agentcall.Message) (string, error) {
			return "hello back", nil
		},
	}}
	round := roundservice.New(store, agents, resolver, libbus.NewInMem(), nil, time.Second)

	mux := http.NewServeMux()
	chatapi.AddChatRoutes(mux, round, store)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, agents
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestSendRoute_GroupRoundReturnsReplies(t *testing.T) {
	srv, store, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/send", chatapi.SendRequest{
		Recipient: conversationstore.RecipientEveryone,
		Content:   "hi everyone",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out chatapi.SendResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Replies, 1)
	require.Equal(t, "hello back", out.Replies[0].Message.Content)

	msgs, err := store.MessagesIn(context.Background(), conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestSendRoute_RejectsEmptyContent(t *testing.T) {
	srv, _, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/send", chatapi.SendRequest{
		Recipient: conversationstore.RecipientEveryone,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMessagesRoute_ReadsBuckets(t *testing.T) {
	srv, store, _ := setupServer(t)
	ctx := context.Background()

	_, err := store.Append(ctx, conversationstore.BucketGroup, conversationstore.Message{
		Sender: conversationstore.SenderUser, Recipient: conversationstore.RecipientEveryone, Content: "seed",
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/messages?bucket=group")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []conversationstore.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, "seed", msgs[0].Content)

	// Unknown buckets read as empty.
	resp, err = http.Get(srv.URL + "/messages?bucket=nobody")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Empty(t, msgs)
}

func TestModeRoutes_SwitchAndRead(t *testing.T) {
	srv, _, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/mode", map[string]string{"mode": "agent-a"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/mode")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Mode string `json:"mode"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "agent-a", out.Mode)
}

func TestAgentContextRoute_ReturnsUnion(t *testing.T) {
	srv, store, _ := setupServer(t)
	ctx := context.Background()

	_, err := store.Append(ctx, conversationstore.BucketGroup, conversationstore.Message{
		Sender: conversationstore.SenderUser, Recipient: conversationstore.RecipientEveryone, Content: "public",
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, "agent-a", conversationstore.Message{
		Sender: conversationstore.SenderUser, Recipient: "agent-a", Content: "secret",
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/agents/agent-a/context")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []conversationstore.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
}

func TestAutoChatRoutes_Lifecycle(t *testing.T) {
	srv, _, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/autochat/start", chatapi.AutoChatRequest{IntervalMS: 50})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status roundservice.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.Running)

	resp = postJSON(t, srv.URL+"/autochat/stop", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/autochat")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.False(t, status.Running)
}

func TestClearMessagesRoute(t *testing.T) {
	srv, store, _ := setupServer(t)
	ctx := context.Background()

	_, err := store.Append(ctx, conversationstore.BucketGroup, conversationstore.Message{
		Sender: conversationstore.SenderUser, Recipient: conversationstore.RecipientEveryone, Content: "x",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/messages?bucket=group", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msgs, err := store.MessagesIn(ctx, conversationstore.BucketGroup)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
