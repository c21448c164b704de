// Package factory wires the provider subpackages into the resolver. It
// lives below the providers so agentcall itself stays import-cycle free.
package factory

import (
	"net/http"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/internal/agentcall"
	"github.com/contenox/coffeehouse/internal/agentcall/anthropic"
	"github.com/contenox/coffeehouse/internal/agentcall/gemini"
	"github.com/contenox/coffeehouse/internal/agentcall/ollama"
	"github.com/contenox/coffeehouse/internal/agentcall/openai"
	"github.com/contenox/coffeehouse/libtracker"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// Default returns the factory map for every built-in provider.
func Default() map[string]agentcall.NewClientFunc {
	return map[string]agentcall.NewClientFunc{
		agentcall.ProviderOllama: func(agent agentservice.Agent, _ string, httpClient *http.Client, tracker libtracker.ActivityTracker) (agentcall.ChatClient, error) {
			baseURL := agent.BaseURL
			if baseURL == "" {
				baseURL = ollamaDefaultBaseURL
			}
			return ollama.New(baseURL, agent.Model, httpClient, tracker)
		},
		agentcall.ProviderOpenAI: func(agent agentservice.Agent, apiKey string, httpClient *http.Client, tracker libtracker.ActivityTracker) (agentcall.ChatClient, error) {
			return openai.New(agent.BaseURL, apiKey, agent.Model, httpClient, tracker), nil
		},
		// xAI speaks the OpenAI chat completions dialect.
		agentcall.ProviderXAI: func(agent agentservice.Agent, apiKey string, httpClient *http.Client, tracker libtracker.ActivityTracker) (agentcall.ChatClient, error) {
			return openai.New(agentcall.XAIBaseURL(agent), apiKey, agent.Model, httpClient, tracker), nil
		},
		agentcall.ProviderGemini: func(agent agentservice.Agent, apiKey string, httpClient *http.Client, tracker libtracker.ActivityTracker) (agentcall.ChatClient, error) {
			return gemini.New(agent.BaseURL, apiKey, agent.Model, httpClient, tracker), nil
		},
		agentcall.ProviderAnthropic: func(agent agentservice.Agent, apiKey string, httpClient *http.Client, tracker libtracker.ActivityTracker) (agentcall.ChatClient, error) {
			return anthropic.New(agent.BaseURL, apiKey, agent.Model, httpClient, tracker), nil
		},
	}
}

// NewResolver is a convenience constructor with all built-in providers.
func NewResolver(httpClient *http.Client, tracker libtracker.ActivityTracker) agentcall.Resolver {
	return agentcall.NewResolver(httpClient, tracker, Default())
}
