package gemini

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

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type GeminiChatClient struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	tracker    libtracker.ActivityTracker
}

func New(baseURL, apiKey, modelName string, httpClient *http.Client, tracker libtracker.ActivityTracker) *GeminiChatClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &GeminiChatClient{
		apiKey:     apiKey,
		modelName:  modelName,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tracker:    tracker,
	}
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateContentRequest struct {
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	Contents          []geminiContent          `json:"contents"`
}

type geminiGenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// sendRequest: shared HTTP helper for Gemini calls
func (c *GeminiChatClient) sendRequest(ctx context.Context, endpoint string, request interface{}, response interface{}) error {
	fullURL := fmt.Sprintf("%s%s", c.baseURL, endpoint)

	reportErr, reportChange, end := c.tracker.Start(
		ctx,
		"http_request",
		"gemini",
		"model", c.modelName,
		"endpoint", endpoint,
		"base_url", c.baseURL,
	)
	defer end()

	var reqBody io.Reader
	if request != nil {
		b, err := json.Marshal(request)
		if err != nil {
			err = fmt.Errorf("failed to marshal request: %w", err)
			reportErr(err)
			return err
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, reqBody)
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", err)
		reportErr(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

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
		bodyBytes, _ := io.ReadAll(resp.Body)
		err = fmt.Errorf("Gemini API returned non-200 status: %d, body: %s for model %s",
			resp.StatusCode, string(bodyBytes), c.modelName)
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

func (c *GeminiChatClient) Chat(ctx context.Context, messages []agentcall.Message) (string, error) {
	reportErr, reportChange, end := c.tracker.Start(ctx, "chat", "gemini", "model", c.modelName)
	defer end()

	// Pull out an optional system instruction
	var systemInstruction *geminiSystemInstruction
	contents := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if m.Content != "" {
				systemInstruction = &geminiSystemInstruction{
					Parts: []geminiPart{{Text: m.Content}},
				}
			}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	req := geminiGenerateContentRequest{
		SystemInstruction: systemInstruction,
		Contents:          contents,
	}

	endpoint := fmt.Sprintf("/v1beta/models/%s:generateContent", c.modelName)
	var resp geminiGenerateContentResponse
	if err := c.sendRequest(ctx, endpoint, req, &resp); err != nil {
		reportErr(err)
		return "", err
	}

	if len(resp.Candidates) == 0 {
		err := fmt.Errorf("no candidates returned from Gemini for model %s", c.modelName)
		reportErr(err)
		return "", err
	}

	var outText string
	for _, p := range resp.Candidates[0].Content.Parts {
		outText += p.Text
	}
	if outText == "" {
		reportErr(agentcall.ErrEmptyResponse)
		return "", fmt.Errorf("%w: model %s", agentcall.ErrEmptyResponse, c.modelName)
	}

	reportChange("chat_completed", map[string]any{"model": c.modelName})
	return outText, nil
}

var _ agentcall.ChatClient = (*GeminiChatClient)(nil)
