// Package libbus provides process-internal and NATS-backed pub/sub
// messaging. The coffeehouse server publishes conversation events
// (message added, round finished, agent errors) through a Messenger;
// local single-process mode uses InMem, server mode uses NATS.
package libbus

import (
	"context"
	"errors"
)

var (
	// ErrConnectionClosed is returned for operations on a closed Messenger.
	ErrConnectionClosed = errors.New("libbus: connection closed")
	// ErrRequestTimeout is returned when a request-reply exchange times out.
	ErrRequestTimeout = errors.New("libbus: request timed out")
)

// Handler processes a request payload and returns the reply payload.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Subscription is a handle to an active stream or serve registration.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the pub/sub surface used by services.
type Messenger interface {
	// Publish sends a fire-and-forget message to all Stream subscribers.
	Publish(ctx context.Context, subject string, data []byte) error
	// Stream subscribes ch to a subject until Unsubscribe or ctx is done.
	Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error)
	// Request sends a request and waits for a reply from a Serve handler.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	// Serve registers a request-reply handler for the subject.
	Serve(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

// Config holds NATS connection settings for NewPubSub.
type Config struct {
	NATSURL      string
	NATSUser     string
	NATSPassword string
}
