package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/libtracker"
	"github.com/ollama/ollama/api"
)

type OllamaChatClient struct {
	ollamaClient *api.Client
	modelName    string
	backendURL   string
	tracker      libtracker.ActivityTracker
}

// New builds a chat client against an Ollama backend.
func New(backendURL, modelName string, httpClient *http.Client, tracker libtracker.ActivityTracker) (*OllamaChatClient, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama backend URL %q: %w", backendURL, err)
	}
	return &OllamaChatClient{
		ollamaClient: api.NewClient(u, httpClient),
		modelName:    modelName,
		backendURL:   backendURL,
		tracker:      tracker,
	}, nil
}

func (c *OllamaChatClient) Chat(ctx context.Context, messages []agentcall.Message) (string, error) {
	reportErr, reportChange, end := c.tracker.Start(ctx, "chat", "ollama", "model", c.modelName)
	defer end()

	apiMessages := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	think := api.ThinkValue{Value: false}
	stream := false
	req := &api.ChatRequest{
		Model:    c.modelName,
		Messages: apiMessages,
		Stream:   &stream,
		Think:    &think,
	}

	var finalResponse api.ChatResponse
	err := c.ollamaClient.Chat(ctx, req, func(res api.ChatResponse) error {
		// We keep only the final frame; Ollama includes the full message there
		if res.Done {
			finalResponse = res
		}
		return nil
	})
	if err != nil {
		reportErr(err)
		return "", fmt.Errorf("ollama API chat request failed for model %s: %w", c.modelName, err)
	}

	if finalResponse.Message.Role == "" {
		err := fmt.Errorf("no response received from ollama for model %s", c.modelName)
		reportErr(err)
		return "", err
	}

	switch finalResponse.DoneReason {
	case "error":
		err := fmt.Errorf("ollama generation error for model %s: %s", c.modelName, finalResponse.Message.Content)
		reportErr(err)
		return "", err
	case "length":
		err := fmt.Errorf("token limit reached for model %s (partial response: %q)", c.modelName, finalResponse.Message.Content)
		reportErr(err)
		return "", err
	case "stop":
		if finalResponse.Message.Content == "" {
			reportErr(agentcall.ErrEmptyResponse)
			return "", fmt.Errorf("%w: model %s completed normally without content", agentcall.ErrEmptyResponse, c.modelName)
		}
	default:
		err := fmt.Errorf("unexpected completion reason %q for model %s", finalResponse.DoneReason, c.modelName)
		reportErr(err)
		return "", err
	}

	reportChange("chat_completed", map[string]any{"model": c.modelName})
	return finalResponse.Message.Content, nil
}

var _ agentcall.ChatClient = (*OllamaChatClient)(nil)
