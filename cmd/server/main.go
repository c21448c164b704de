// Coffeehouse server: env-configured deployment entrypoint backed by
// Postgres, NATS, and Valkey.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/archivestore"
	libbus "github.com/contenox/coffeehouse/libbus"
	libdb "github.com/contenox/coffeehouse/libdbexec"
	"github.com/contenox/coffeehouse/libkvstore"
	libroutine "github.com/contenox/coffeehouse/libroutine"
	"github.com/contenox/coffeehouse/libtracker"
	"github.com/contenox/coffeehouse/serverapi"
	"github.com/google/uuid"
)

var (
	cliSetTenancy  string
	Tenancy        = "96ed1c59-ffc1-4545-b3c3-191079c68d79"
	nodeInstanceID = "NODE-Instance-UNSET-dev"
)

func initDatabase(ctx context.Context, cfg *serverapi.Config) (libdb.DBManager, error) {
	dbURL := cfg.DatabaseURL
	var err error
	if dbURL == "" {
		err = fmt.Errorf("DATABASE_URL is required")
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	var dbInstance libdb.DBManager
	err = libroutine.NewRoutine(10, time.Minute).ExecuteWithRetry(ctx, time.Second, 3, func(ctx context.Context) error {
		dbInstance, err = libdb.NewPostgresDBManager(ctx, dbURL, archivestore.Schema)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return dbInstance, nil
}

func initPubSub(ctx context.Context, cfg *serverapi.Config) (libbus.Messenger, error) {
	ps, err := libbus.NewPubSub(ctx, &libbus.Config{
		NATSURL:      cfg.NATSURL,
		NATSPassword: cfg.NATSPassword,
		NATSUser:     cfg.NATSUser,
	})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func initKVStore(cfg *serverapi.Config) (libkvstore.KVManager, error) {
	if cfg.KVAddr == "" {
		return nil, fmt.Errorf("KV_ADDR is required")
	}
	return libkvstore.NewManager(libkvstore.Config{
		KVAddr:     cfg.KVAddr,
		KVPassword: cfg.KVPassword,
	}, 5*time.Second)
}

func main() {
	if cliSetTenancy == "" {
		log.Fatalf("corrupted build! cliSetTenantID was not injected")
	}

	nodeInstanceID = uuid.NewString()[0:8]
	Tenancy = cliSetTenancy
	config := &serverapi.Config{}
	if err := serverapi.LoadConfig(config); err != nil {
		log.Fatalf("%s: failed to load configuration: %v", nodeInstanceID, err)
	}
	ctx := libtracker.WithNewRequestID(context.Background())
	cleanups := []func() error{func() error {
		fmt.Printf("%s cleaning up", nodeInstanceID)
		return nil
	}}
	defer func() {
		for _, cleanup := range cleanups {
			err := cleanup()
			if err != nil {
				log.Printf("%s cleanup failed: %v", nodeInstanceID, err)
			}
		}
	}()
	fmt.Print("initialize the database")
	dbInstance, err := initDatabase(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing database failed: %v", nodeInstanceID, err)
	}
	defer dbInstance.Close()

	ps, err := initPubSub(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing PubSub failed: %v", nodeInstanceID, err)
	}
	defer ps.Close()

	kvManager, err := initKVStore(config)
	if err != nil {
		log.Fatalf("%s initializing KV store failed: %v", nodeInstanceID, err)
	}
	defer kvManager.Close()

	internalMux := http.NewServeMux()
	var apiHandler http.Handler = internalMux
	cleanup, err := serverapi.New(ctx, internalMux, nodeInstanceID, Tenancy, config, dbInstance, ps, kvManager)
	cleanups = append(cleanups, cleanup)
	if err != nil {
		log.Fatalf("%s initializing API handler failed: %v", nodeInstanceID, err)
	}
	apiHandler = apiframework.RequestIDMiddleware(apiHandler)
	apiHandler = apiframework.TracingMiddleware(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	port := config.Port
	log.Printf("%s %s starting server on :%s", Tenancy, nodeInstanceID, port)
	if err := http.ListenAndServe(config.Addr+":"+port, mux); err != nil {
		log.Fatalf("%s server failed: %v", nodeInstanceID, err)
	}
}
