package agentapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/internal/agentapi"
	"github.com/contenox/coffeehouse/libkvstore"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	kv, err := libkvstore.NewInMem().Executor(context.Background())
	require.NoError(t, err)

	mux := http.NewServeMux()
	agentapi.AddAgentRoutes(mux, agentservice.New(kv))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postAgent(t *testing.T, url string, agent agentservice.Agent) *http.Response {
	t.Helper()
	data, err := json.Marshal(agent)
	require.NoError(t, err)
	resp, err := http.Post(url+"/agents", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestAgentRoutes_CreateAndGet(t *testing.T) {
	srv := setupServer(t)

	resp := postAgent(t, srv.URL, agentservice.Agent{
		Name: "Barista", Provider: "ollama", Model: "qwen2.5:7b", Persona: "cheerful",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created agentservice.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	getResp, err := http.Get(srv.URL + "/agents/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched agentservice.Agent
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	require.Equal(t, created, fetched)
}

func TestAgentRoutes_CreateRejectsInvalid(t *testing.T) {
	srv := setupServer(t)

	resp := postAgent(t, srv.URL, agentservice.Agent{Name: "NoModel", Provider: "ollama"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAgentRoutes_GetUnknownIsNotFound(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/agents/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgentRoutes_ListKeepsSpeakingOrder(t *testing.T) {
	srv := setupServer(t)

	for _, a := range []agentservice.Agent{
		{Name: "Second", Provider: "ollama", Model: "m", Position: 2},
		{Name: "First", Provider: "ollama", Model: "m", Position: 1},
	} {
		resp := postAgent(t, srv.URL, a)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var agents []agentservice.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	require.Len(t, agents, 2)
	require.Equal(t, "First", agents[0].Name)
	require.Equal(t, "Second", agents[1].Name)
}

func TestAgentRoutes_UpdateAndDelete(t *testing.T) {
	srv := setupServer(t)

	resp := postAgent(t, srv.URL, agentservice.Agent{Name: "Old", Provider: "ollama", Model: "m"})
	var created agentservice.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	created.Name = "New"
	data, err := json.Marshal(created)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/agents/"+created.ID, bytes.NewReader(data))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/agents/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	getResp, err := http.Get(srv.URL + "/agents/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusNotFound, getResp.StatusCode)
}
