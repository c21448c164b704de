package libbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsPubSub implements Messenger on a NATS connection.
type natsPubSub struct {
	nc *nats.Conn
}

// NewPubSub connects to NATS and returns a Messenger backed by it.
func NewPubSub(ctx context.Context, cfg *Config) (Messenger, error) {
	if cfg == nil || cfg.NATSURL == "" {
		return nil, fmt.Errorf("libbus: NATS URL is required")
	}
	opts := []nats.Option{nats.Name("coffeehouse")}
	if cfg.NATSUser != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("libbus: failed to connect to NATS: %w", err)
	}
	return &natsPubSub{nc: nc}, nil
}

func (p *natsPubSub) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.nc.IsClosed() {
		return ErrConnectionClosed
	}
	return p.nc.Publish(subject, data)
}

func (p *natsPubSub) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		// Slow consumers drop messages rather than blocking the
		// NATS delivery goroutine.
		select {
		case ch <- msg.Data:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("libbus: subscribe failed: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (p *natsPubSub) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	msg, err := p.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return nil, ErrRequestTimeout
		}
		return nil, err
	}
	return msg.Data, nil
}

func (p *natsPubSub) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply, err := handler(ctx, msg.Data)
		if err != nil {
			reply = fmt.Appendf(nil, "error: %s", err.Error())
		}
		_ = msg.Respond(reply)
	})
	if err != nil {
		return nil, fmt.Errorf("libbus: serve subscribe failed: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (p *natsPubSub) Close() error {
	p.nc.Close()
	return nil
}

var _ Messenger = (*natsPubSub)(nil)
