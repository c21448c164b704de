// serve.go starts an in-process coffeehouse server from the local config.
package coffeecli

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/archivestore"
	"github.com/contenox/coffeehouse/libbus"
	libdb "github.com/contenox/coffeehouse/libdbexec"
	"github.com/contenox/coffeehouse/libkvstore"
	"github.com/contenox/coffeehouse/libroutine"
	"github.com/contenox/coffeehouse/serverapi"
	"github.com/google/uuid"
)

const localTenantID = "00000000-0000-0000-0000-000000000001"

func runServe(ctx context.Context, cfg localConfig, configPath string) error {
	nodeInstanceID := uuid.NewString()[0:8]

	var coffeehouseDir string
	if configPath != "" {
		coffeehouseDir = filepath.Dir(configPath)
	} else {
		cwd, _ := os.Getwd()
		coffeehouseDir = filepath.Join(cwd, ".coffeehouse")
	}

	dbInstance, err := initDatabase(ctx, cfg, coffeehouseDir)
	if err != nil {
		return fmt.Errorf("initializing database failed: %w", err)
	}
	defer dbInstance.Close()

	var ps libbus.Messenger
	if cfg.NATSURL != "" {
		ps, err = libbus.NewPubSub(ctx, &libbus.Config{
			NATSURL:      cfg.NATSURL,
			NATSUser:     cfg.NATSUser,
			NATSPassword: cfg.NATSPassword,
		})
		if err != nil {
			return fmt.Errorf("initializing pubsub failed: %w", err)
		}
	} else {
		ps = libbus.NewInMem()
	}
	defer ps.Close()

	var kvManager libkvstore.KVManager
	if cfg.KVAddr != "" {
		kvManager, err = libkvstore.NewManager(libkvstore.Config{
			KVAddr:     cfg.KVAddr,
			KVPassword: cfg.KVPassword,
		}, 5*time.Second)
		if err != nil {
			return fmt.Errorf("initializing kv store failed: %w", err)
		}
	} else {
		kvManager = libkvstore.NewInMem()
	}
	defer kvManager.Close()

	if err := ensureAgents(ctx, kvManager, cfg.Agents); err != nil {
		return fmt.Errorf("registering agents failed: %w", err)
	}

	serverCfg := &serverapi.Config{
		DatabaseURL:  cfg.DatabaseURL,
		Port:         cfg.Port,
		Addr:         cfg.Addr,
		NATSURL:      cfg.NATSURL,
		NATSUser:     cfg.NATSUser,
		NATSPassword: cfg.NATSPassword,
		KVAddr:       cfg.KVAddr,
		KVPassword:   cfg.KVPassword,
		StateSecret:  cfg.StateSecret,
		AgentTimeout: cfg.AgentTimeout,
	}

	internalMux := http.NewServeMux()
	cleanup, err := serverapi.New(ctx, internalMux, nodeInstanceID, localTenantID, serverCfg, dbInstance, ps, kvManager)
	if err != nil {
		return fmt.Errorf("initializing API handler failed: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("cleanup failed", "error", err)
		}
	}()

	var apiHandler http.Handler = internalMux
	apiHandler = apiframework.RequestIDMiddleware(apiHandler)
	apiHandler = apiframework.TracingMiddleware(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)

	port := cfg.Port
	if port == "" {
		port = defaultPort
	}
	srv := &http.Server{Addr: cfg.Addr + ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("%s starting server on %s:%s", nodeInstanceID, cfg.Addr, port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// initDatabase opens the archive database: postgres when a URL is
// configured, otherwise a SQLite file next to the config.
func initDatabase(ctx context.Context, cfg localConfig, coffeehouseDir string) (libdb.DBManager, error) {
	if cfg.DatabaseURL == "" {
		path := filepath.Join(coffeehouseDir, "archive.db")
		return libdb.NewSQLiteDBManager(ctx, path, archivestore.Schema)
	}
	var dbInstance libdb.DBManager
	err := libroutine.NewRoutine(10, time.Minute).ExecuteWithRetry(ctx, time.Second, 3, func(ctx context.Context) error {
		var err error
		dbInstance, err = libdb.NewPostgresDBManager(ctx, cfg.DatabaseURL, archivestore.Schema)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return dbInstance, nil
}

// ensureAgents registers the configured roster, skipping agents that
// already exist under the same name.
func ensureAgents(ctx context.Context, kvManager libkvstore.KVManager, entries []agentEntry) error {
	if len(entries) == 0 {
		return nil
	}
	kvExec, err := kvManager.Executor(ctx)
	if err != nil {
		return err
	}
	agents := agentservice.New(kvExec)
	existing, err := agents.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]bool, len(existing))
	for _, a := range existing {
		byName[a.Name] = true
	}
	for i, entry := range entries {
		if byName[entry.Name] {
			continue
		}
		position := i
		if entry.Position != nil {
			position = *entry.Position
		}
		agent := agentservice.Agent{
			ID:        entry.ID,
			Name:      entry.Name,
			Persona:   entry.Persona,
			Provider:  entry.Provider,
			Model:     entry.Model,
			BaseURL:   entry.BaseURL,
			APIKey:    entry.APIKey,
			APIKeyEnv: entry.APIKeyFromEnv,
			Position:  position,
		}
		if _, err := agents.Create(ctx, agent); err != nil {
			return fmt.Errorf("agent %q: %w", entry.Name, err)
		}
		slog.Info("registered agent", "name", entry.Name, "provider", entry.Provider, "model", entry.Model)
	}
	return nil
}
