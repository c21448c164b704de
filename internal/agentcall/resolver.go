package agentcall

import (
	"fmt"
	"net/http"
	"os"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/libtracker"
)

// Supported provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderXAI       = "xai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

const xaiDefaultBaseURL = "https://api.x.ai/v1"

// Resolver maps an agent configuration to a ChatClient.
type Resolver interface {
	Resolve(agent agentservice.Agent) (ChatClient, error)
}

// NewClientFunc builds a ChatClient for one provider.
type NewClientFunc func(agent agentservice.Agent, apiKey string, httpClient *http.Client, tracker libtracker.ActivityTracker) (ChatClient, error)

type resolver struct {
	httpClient *http.Client
	tracker    libtracker.ActivityTracker
	factories  map[string]NewClientFunc
}

// NewResolver returns a resolver with the given provider factories. The
// factory subpackage assembles the default set; keeping the map injected
// avoids an import cycle with the provider subpackages.
func NewResolver(httpClient *http.Client, tracker libtracker.ActivityTracker, factories map[string]NewClientFunc) Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &resolver{
		httpClient: httpClient,
		tracker:    tracker,
		factories:  factories,
	}
}

func (r *resolver) Resolve(agent agentservice.Agent) (ChatClient, error) {
	factory, ok := r.factories[agent.Provider]
	if !ok {
		return nil, fmt.Errorf("agentcall: unknown provider %q for agent %s", agent.Provider, agent.ID)
	}
	return factory(agent, ResolveAPIKey(agent), r.httpClient, r.tracker)
}

// ResolveAPIKey returns the agent's API key, preferring the inline key
// over the environment variable indirection.
func ResolveAPIKey(agent agentservice.Agent) string {
	if agent.APIKey != "" {
		return agent.APIKey
	}
	if agent.APIKeyEnv != "" {
		return os.Getenv(agent.APIKeyEnv)
	}
	return ""
}

// XAIBaseURL returns the effective base URL for an xAI agent.
func XAIBaseURL(agent agentservice.Agent) string {
	if agent.BaseURL != "" {
		return agent.BaseURL
	}
	return xaiDefaultBaseURL
}
