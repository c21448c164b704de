// Package agentservice manages the agent registry: who sits at the table,
// which model backs them, and the order they speak in during group rounds.
package agentservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/libkvstore"
	"github.com/google/uuid"
)

var (
	ErrAgentNotFound = errors.New("agentservice: agent not found")
	ErrAgentExists   = errors.New("agentservice: agent already exists")
	ErrInvalidAgent  = errors.New("agentservice: invalid agent")
)

// Agent is a configured chat participant. APIKeyEnv names an environment
// variable to read the key from; APIKey takes precedence when set.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Persona   string `json:"persona"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	APIKeyEnv string `json:"apiKeyEnv,omitempty"`
	Position  int    `json:"position"`
}

type Service interface {
	Create(ctx context.Context, agent Agent) (Agent, error)
	Get(ctx context.Context, id string) (Agent, error)
	Update(ctx context.Context, agent Agent) (Agent, error)
	Delete(ctx context.Context, id string) error
	// List returns all agents in registry order: ascending Position,
	// creation order on ties. This is the group-round commit order.
	List(ctx context.Context) ([]Agent, error)
}

const registryKey = "agent-registry"

func agentKey(id string) string {
	return "agent:" + id
}

type service struct {
	kv libkvstore.KVExec
}

func New(kv libkvstore.KVExec) Service {
	return &service{kv: kv}
}

func validate(agent Agent) error {
	if agent.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	if agent.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidAgent)
	}
	if agent.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidAgent)
	}
	switch agent.ID {
	case conversationstore.SenderUser, conversationstore.RecipientEveryone, conversationstore.BucketGroup:
		return fmt.Errorf("%w: %q is a reserved name", ErrInvalidAgent, agent.ID)
	}
	return nil
}

func (s *service) Create(ctx context.Context, agent Agent) (Agent, error) {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if err := validate(agent); err != nil {
		return Agent{}, err
	}
	exists, err := s.kv.Exists(ctx, agentKey(agent.ID))
	if err != nil {
		return Agent{}, fmt.Errorf("check agent existence: %w", err)
	}
	if exists {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentExists, agent.ID)
	}
	if err := s.put(ctx, agent); err != nil {
		return Agent{}, err
	}

	ids, err := s.registry(ctx)
	if err != nil {
		return Agent{}, err
	}
	ids = append(ids, agent.ID)
	if err := s.saveRegistry(ctx, ids); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

func (s *service) Get(ctx context.Context, id string) (Agent, error) {
	raw, err := s.kv.Get(ctx, agentKey(id))
	if errors.Is(err, libkvstore.ErrNotFound) {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("load agent %s: %w", id, err)
	}
	var agent Agent
	if err := json.Unmarshal(raw, &agent); err != nil {
		return Agent{}, fmt.Errorf("decode agent %s: %w", id, err)
	}
	return agent, nil
}

func (s *service) Update(ctx context.Context, agent Agent) (Agent, error) {
	if err := validate(agent); err != nil {
		return Agent{}, err
	}
	if _, err := s.Get(ctx, agent.ID); err != nil {
		return Agent{}, err
	}
	if err := s.put(ctx, agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, agentKey(id)); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	ids, err := s.registry(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return s.saveRegistry(ctx, kept)
}

func (s *service) List(ctx context.Context) ([]Agent, error) {
	ids, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := s.Get(ctx, id)
		if errors.Is(err, ErrAgentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	sort.SliceStable(agents, func(i, j int) bool {
		return agents[i].Position < agents[j].Position
	})
	return agents, nil
}

func (s *service) put(ctx context.Context, agent Agent) error {
	raw, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("encode agent %s: %w", agent.ID, err)
	}
	if err := s.kv.Set(ctx, agentKey(agent.ID), raw); err != nil {
		return fmt.Errorf("store agent %s: %w", agent.ID, err)
	}
	return nil
}

func (s *service) registry(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, registryKey)
	if errors.Is(err, libkvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agent registry: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode agent registry: %w", err)
	}
	return ids, nil
}

func (s *service) saveRegistry(ctx context.Context, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode agent registry: %w", err)
	}
	if err := s.kv.Set(ctx, registryKey, raw); err != nil {
		return fmt.Errorf("store agent registry: %w", err)
	}
	return nil
}

var _ Service = (*service)(nil)
