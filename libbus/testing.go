package libbus

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
)

// SetupNatsInstance starts a disposable NATS container for system tests.
func SetupNatsInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := natscontainer.Run(ctx, "docker.io/nats:2.10")
	if err != nil {
		return "", nil, cleanup, fmt.Errorf("failed to start nats container: %w", err)
	}

	cleanup = func() {
		timeout := time.Second
		_ = container.Stop(context.Background(), &timeout)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return "", nil, cleanup, fmt.Errorf("failed to resolve connection string: %w", err)
	}
	return url, container, cleanup, nil
}

// NewTestPubSub spins up a throwaway NATS instance and connects to it.
func NewTestPubSub() (Messenger, func(), error) {
	ctx := context.Background()
	url, _, cleanup, err := SetupNatsInstance(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	ps, err := NewPubSub(ctx, &Config{NATSURL: url})
	if err != nil {
		return nil, cleanup, err
	}
	teardown := func() {
		_ = ps.Close()
		cleanup()
	}
	return ps, teardown, nil
}
