package serverapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/archivestore"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/internal/agentapi"
	"github.com/contenox/coffeehouse/internal/agentcall/factory"
	"github.com/contenox/coffeehouse/internal/archiver"
	"github.com/contenox/coffeehouse/internal/chatapi"
	"github.com/contenox/coffeehouse/libbus"
	"github.com/contenox/coffeehouse/libcipher"
	libdb "github.com/contenox/coffeehouse/libdbexec"
	"github.com/contenox/coffeehouse/libkvstore"
	"github.com/contenox/coffeehouse/libtracker"
	"github.com/contenox/coffeehouse/roundservice"
)

// stateSalt keys the at-rest encryption of the conversation blob. It is a
// constant so the same secret derives the same key across restarts.
var stateSalt = []byte("coffeehouse-state-v1")

func New(
	ctx context.Context,
	mux *http.ServeMux,
	nodeInstanceID string,
	tenancy string,
	config *Config,
	dbInstance libdb.DBManager,
	pubsub libbus.Messenger,
	kvManager libkvstore.KVManager,
) (func() error, error) {
	cleanup := func() error { return nil }
	stdOuttracker := libtracker.NewLogActivityTracker(slog.Default())
	serveropsChainedTracker := libtracker.ChainedTracker{
		stdOuttracker,
	}
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Error(w, r, apiframework.ErrNotFound, apiframework.ListOperation)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		// OK
	})
	version := apiframework.GetVersion()
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Encode(w, r, http.StatusOK, apiframework.AboutServer{Version: version, NodeInstanceID: nodeInstanceID, Tenancy: tenancy})
	})

	kvExec, err := kvManager.Executor(ctx)
	if err != nil {
		return cleanup, fmt.Errorf("kv executor: %w", err)
	}

	// Conversation state: events on every append, persisted into KV after
	// every mutation, rehydrated on start.
	var persistOpts []conversationstore.PersistOption
	if config.StateSecret != "" {
		key, err := libcipher.DeriveKey(config.StateSecret, stateSalt)
		if err != nil {
			return cleanup, fmt.Errorf("derive state key: %w", err)
		}
		persistOpts = append(persistOpts, conversationstore.WithEncryptionKey(key))
	}
	persistent := conversationstore.WithPersistence(
		conversationstore.WithEvents(conversationstore.New(), pubsub),
		kvExec,
		persistOpts...,
	)
	if err := persistent.Load(ctx); err != nil {
		return cleanup, fmt.Errorf("load conversation state: %w", err)
	}
	store := conversationstore.WithActivityTracker(persistent, serveropsChainedTracker)

	agentService := agentservice.New(kvExec)
	agentService = agentservice.WithActivityTracker(agentService, serveropsChainedTracker)
	agentapi.AddAgentRoutes(mux, agentService)

	callTimeout := 2 * time.Minute
	if config.AgentTimeout != "" {
		parsed, err := time.ParseDuration(config.AgentTimeout)
		if err != nil {
			return cleanup, fmt.Errorf("parse agent timeout: %w", err)
		}
		callTimeout = parsed
	}
	resolver := factory.NewResolver(http.DefaultClient, serveropsChainedTracker)
	roundService := roundservice.New(store, agentService, resolver, pubsub, serveropsChainedTracker, callTimeout)
	roundService = roundservice.WithActivityTracker(roundService, serveropsChainedTracker)
	chatapi.AddChatRoutes(mux, roundService, store)
	// The browser UI is served from its own origin; scope the SSE stream
	// to it when configured.
	chatapi.AddEventRoutes(mux, pubsub, config.UIBaseURL)

	// Durable archive mirror, fed from the bus.
	archive := archivestore.New(dbInstance.WithoutTransaction())
	sub, err := archiver.New(archive, pubsub, serveropsChainedTracker).Start(ctx)
	if err != nil {
		return cleanup, fmt.Errorf("start archiver: %w", err)
	}
	cleanup = func() error {
		return sub.Unsubscribe()
	}

	return cleanup, nil
}

type Config struct {
	DatabaseURL  string `json:"database_url"`
	Port         string `json:"port"`
	Addr         string `json:"addr"`
	NATSURL      string `json:"nats_url"`
	NATSUser     string `json:"nats_user"`
	NATSPassword string `json:"nats_password"`
	KVAddr       string `json:"kv_addr"`
	KVPassword   string `json:"kv_password"`
	StateSecret  string `json:"state_secret"`
	AgentTimeout string `json:"agent_timeout"`
	UIBaseURL    string `json:"ui_base_url"`
}

func LoadConfig[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config pointer is nil")
	}
	config := map[string]string{}
	for _, kvPair := range os.Environ() {
		ar := strings.SplitN(kvPair, "=", 2)
		if len(ar) < 2 {
			continue
		}
		key := strings.ToLower(ar[0])
		value := ar[1]
		config[key] = value
	}

	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal env vars: %w", err)
	}
	err = json.Unmarshal(b, cfg)
	if err != nil {
		return fmt.Errorf("failed to unmarshal into config struct: %w", err)
	}

	return nil
}
