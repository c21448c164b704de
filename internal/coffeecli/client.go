// client.go holds the thin HTTP client the CLI uses to talk to a running server.
package coffeecli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/internal/chatapi"
	"github.com/contenox/coffeehouse/roundservice"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiframework.HandleAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) send(ctx context.Context, recipient, content string) (chatapi.SendResponse, error) {
	var out chatapi.SendResponse
	err := c.do(ctx, http.MethodPost, "/send", chatapi.SendRequest{Recipient: recipient, Content: content}, &out)
	return out, err
}

func (c *apiClient) messages(ctx context.Context, bucket string) ([]conversationstore.Message, error) {
	path := "/messages"
	if bucket != "" {
		path += "?bucket=" + bucket
	}
	var out []conversationstore.Message
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) agents(ctx context.Context) ([]agentservice.Agent, error) {
	var out []agentservice.Agent
	err := c.do(ctx, http.MethodGet, "/agents", nil, &out)
	return out, err
}

func (c *apiClient) addAgent(ctx context.Context, agent agentservice.Agent) (agentservice.Agent, error) {
	var out agentservice.Agent
	err := c.do(ctx, http.MethodPost, "/agents", agent, &out)
	return out, err
}

func (c *apiClient) removeAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/agents/"+id, nil, nil)
}

func (c *apiClient) mode(ctx context.Context) (string, error) {
	var out struct {
		Mode string `json:"mode"`
	}
	err := c.do(ctx, http.MethodGet, "/mode", nil, &out)
	return out.Mode, err
}

func (c *apiClient) switchMode(ctx context.Context, mode string) error {
	in := struct {
		Mode string `json:"mode"`
	}{Mode: mode}
	return c.do(ctx, http.MethodPost, "/mode", in, nil)
}

func (c *apiClient) startAutoChat(ctx context.Context, intervalMS, roundLimit int) (roundservice.Status, error) {
	var out roundservice.Status
	err := c.do(ctx, http.MethodPost, "/autochat/start", chatapi.AutoChatRequest{
		IntervalMS: intervalMS,
		RoundLimit: roundLimit,
	}, &out)
	return out, err
}

func (c *apiClient) stopAutoChat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/autochat/stop", nil, nil)
}

func (c *apiClient) autoChatStatus(ctx context.Context) (roundservice.Status, error) {
	var out roundservice.Status
	err := c.do(ctx, http.MethodGet, "/autochat", nil, &out)
	return out, err
}

// watch tails the server's event stream, handing each (event, data)
// pair to fn until the context ends or the stream closes.
func (c *apiClient) watch(ctx context.Context, fn func(event, data string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiframework.HandleAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			fn(event, strings.TrimPrefix(line, "data: "))
		case line == "":
			event = ""
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
