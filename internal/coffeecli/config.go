// config.go holds .coffeehouse config types and resolution (load, agent roster).
package coffeecli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// agentEntry is one agent in .coffeehouse/config.yaml (agents list).
type agentEntry struct {
	ID            string `yaml:"id,omitempty"`
	Name          string `yaml:"name"`
	Persona       string `yaml:"persona,omitempty"`
	Provider      string `yaml:"provider"` // ollama | openai | xai | gemini | anthropic
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url,omitempty"`
	APIKey        string `yaml:"api_key,omitempty"`
	APIKeyFromEnv string `yaml:"api_key_from_env,omitempty"`
	Position      *int   `yaml:"position,omitempty"`
}

// localConfig holds optional values from .coffeehouse/config.yaml (flags override).
type localConfig struct {
	ServerURL    string       `yaml:"server_url"`
	Addr         string       `yaml:"addr"`
	Port         string       `yaml:"port"`
	DatabaseURL  string       `yaml:"database_url"`
	NATSURL      string       `yaml:"nats_url"`
	NATSUser     string       `yaml:"nats_user"`
	NATSPassword string       `yaml:"nats_password"`
	KVAddr       string       `yaml:"kv_addr"`
	KVPassword   string       `yaml:"kv_password"`
	StateSecret  string       `yaml:"state_secret"`
	AgentTimeout string       `yaml:"agent_timeout"`
	Agents       []agentEntry `yaml:"agents"`
}

// serverURL resolves the base URL the CLI talks to: flag, then config,
// then the default local address.
func (cfg localConfig) serverURLOr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.ServerURL != "" {
		return strings.TrimRight(cfg.ServerURL, "/")
	}
	port := cfg.Port
	if port == "" {
		port = defaultPort
	}
	return "http://127.0.0.1:" + port
}

// loadLocalConfig tries ./.coffeehouse/config.yaml then ~/.coffeehouse/config.yaml.
// Returns (config, pathToConfigFile, nil). If neither file exists, returns (empty, "", nil).
func loadLocalConfig() (localConfig, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return localConfig{}, "", err
	}
	try := []string{
		filepath.Join(cwd, ".coffeehouse", "config.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		try = append(try, filepath.Join(home, ".coffeehouse", "config.yaml"))
	}
	for _, p := range try {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return localConfig{}, "", err
		}
		var cfg localConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return localConfig{}, "", fmt.Errorf("%s: %w", p, err)
		}
		return cfg, p, nil
	}
	return localConfig{}, "", nil
}
