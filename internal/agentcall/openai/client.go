// Package openai talks to any OpenAI-compatible chat completions endpoint.
// Pointing BaseURL at an xAI or compatible gateway works the same way.
package openai

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

const DefaultBaseURL = "https://api.openai.com/v1"

type OpenAIChatClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	modelName  string
	tracker    libtracker.ActivityTracker
}

func New(baseURL, apiKey, modelName string, httpClient *http.Client, tracker libtracker.ActivityTracker) *OpenAIChatClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &OpenAIChatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		modelName:  modelName,
		tracker:    tracker,
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []agentcall.Message `json:"messages"`
	Stream   bool                `json:"stream,omitempty"`
}

func (c *OpenAIChatClient) sendRequest(ctx context.Context, endpoint string, request interface{}, response interface{}) error {
	url := c.baseURL + endpoint

	reportErr, reportChange, end := c.tracker.Start(
		ctx,
		"http_request",
		"openai",
		"model", c.modelName,
		"endpoint", endpoint,
		"base_url", c.baseURL,
	)
	defer end()

	var reqBody io.Reader
	if request != nil {
		marshaledReqBody, err := json.Marshal(request)
		if err != nil {
			err = fmt.Errorf("failed to marshal request: %w", err)
			reportErr(err)
			return err
		}
		reqBody = bytes.NewBuffer(marshaledReqBody)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, reqBody)
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", err)
		reportErr(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("HTTP request failed for model %s: %w", c.modelName, err)
		reportErr(err)
		return err
	}
	defer resp.Body.Close()

	reportChange("http_response", map[string]any{
		"status_code": resp.StatusCode,
	})

	if resp.StatusCode != http.StatusOK {
		var errorResponse struct {
			Error struct {
				Message string      `json:"message"`
				Type    string      `json:"type"`
				Code    interface{} `json:"code"`
			} `json:"error"`
		}
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			if jsonErr := json.Unmarshal(bodyBytes, &errorResponse); jsonErr == nil && errorResponse.Error.Message != "" {
				err = fmt.Errorf("OpenAI API returned non-200 status: %d, Type: %s, Code: %v, Message: %s for model %s",
					resp.StatusCode, errorResponse.Error.Type, errorResponse.Error.Code, errorResponse.Error.Message, c.modelName)
				reportErr(err)
				return err
			}
			err = fmt.Errorf("OpenAI API returned non-200 status: %d, body: %s for model %s",
				resp.StatusCode, string(bodyBytes), c.modelName)
			reportErr(err)
			return err
		}
		err = fmt.Errorf("OpenAI API returned non-200 status: %d for model %s", resp.StatusCode, c.modelName)
		reportErr(err)
		return err
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			err = fmt.Errorf("failed to decode response for model %s: %w", c.modelName, err)
			reportErr(err)
			return err
		}
	}
	return nil
}

func (c *OpenAIChatClient) Chat(ctx context.Context, messages []agentcall.Message) (string, error) {
	reportErr, reportChange, end := c.tracker.Start(ctx, "chat", "openai", "model", c.modelName)
	defer end()

	req := openAIChatRequest{
		Model:    c.modelName,
		Messages: messages,
	}

	var response struct {
		Choices []struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := c.sendRequest(ctx, "/chat/completions", req, &response); err != nil {
		reportErr(err)
		return "", err
	}

	if len(response.Choices) == 0 {
		err := fmt.Errorf("no chat completion choices returned from OpenAI for model %s", c.modelName)
		reportErr(err)
		return "", err
	}

	choice := response.Choices[0]
	if choice.Message.Content == "" {
		reportErr(agentcall.ErrEmptyResponse)
		return "", fmt.Errorf("%w: model %s finished with reason %s", agentcall.ErrEmptyResponse, c.modelName, choice.FinishReason)
	}

	reportChange("chat_completed", map[string]any{"model": c.modelName})
	return choice.Message.Content, nil
}

var _ agentcall.ChatClient = (*OpenAIChatClient)(nil)
