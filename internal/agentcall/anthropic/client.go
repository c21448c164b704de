package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/libtracker"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	maxTokens      = 1024
)

type AnthropicChatClient struct {
	baseURL    string
	apiKey     string
	modelName  string
	httpClient *http.Client
	tracker    libtracker.ActivityTracker
}

func New(baseURL, apiKey, modelName string, httpClient *http.Client, tracker libtracker.ActivityTracker) *AnthropicChatClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &AnthropicChatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelName:  modelName,
		httpClient: httpClient,
		tracker:    tracker,
	}
}

type anthropicMessagesRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []agentcall.Message `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicChatClient) Chat(ctx context.Context, messages []agentcall.Message) (string, error) {
	reportErr, reportChange, end := c.tracker.Start(ctx, "chat", "anthropic", "model", c.modelName)
	defer end()

	// The messages API takes the system prompt as a top-level field.
	var system string
	filtered := make([]agentcall.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		filtered = append(filtered, m)
	}

	req := anthropicMessagesRequest{
		Model:     c.modelName,
		System:    system,
		Messages:  filtered,
		MaxTokens: maxTokens,
	}
	body, err := json.Marshal(req)
	if err != nil {
		err = fmt.Errorf("failed to marshal request: %w", err)
		reportErr(err)
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", err)
		reportErr(err)
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("HTTP request failed for model %s: %w", c.modelName, err)
		reportErr(err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		err = fmt.Errorf("Anthropic API returned non-200 status: %d, body: %s for model %s",
			resp.StatusCode, string(bodyBytes), c.modelName)
		reportErr(err)
		return "", err
	}

	var response anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		err = fmt.Errorf("failed to decode response for model %s: %w", c.modelName, err)
		reportErr(err)
		return "", err
	}

	var outText string
	for _, block := range response.Content {
		if block.Type == "text" {
			outText += block.Text
		}
	}
	if outText == "" {
		reportErr(agentcall.ErrEmptyResponse)
		return "", fmt.Errorf("%w: model %s stopped with reason %s", agentcall.ErrEmptyResponse, c.modelName, response.StopReason)
	}

	reportChange("chat_completed", map[string]any{"model": c.modelName})
	return outText, nil
}

var _ agentcall.ChatClient = (*AnthropicChatClient)(nil)
