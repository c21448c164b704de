// Package archiver mirrors message events from the bus into the SQL
// archive. It runs as a background subscriber; the chat path never waits
// on it.
package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/contenox/coffeehouse/archivestore"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/libbus"
	"github.com/contenox/coffeehouse/libtracker"
)

type Archiver struct {
	store   archivestore.Store
	ps      libbus.Messenger
	tracker libtracker.ActivityTracker
}

func New(store archivestore.Store, ps libbus.Messenger, tracker libtracker.ActivityTracker) *Archiver {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &Archiver{store: store, ps: ps, tracker: tracker}
}

// Start subscribes to message events and mirrors them until ctx is done.
func (a *Archiver) Start(ctx context.Context) (libbus.Subscription, error) {
	events := make(chan []byte, 64)
	sub, err := a.ps.Stream(ctx, conversationstore.SubjectMessageAdded, events)
	if err != nil {
		return nil, fmt.Errorf("archiver: subscribe failed: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-events:
				if !ok {
					return
				}
				if err := a.archive(ctx, raw); err != nil {
					slog.Error("failed to archive message", "error", err)
				}
			}
		}
	}()
	return sub, nil
}

func (a *Archiver) archive(ctx context.Context, raw []byte) error {
	reportErr, reportChange, end := a.tracker.Start(ctx, "archive_message", "archive")
	defer end()

	var ev conversationstore.MessageAddedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		err = fmt.Errorf("decode message event: %w", err)
		reportErr(err)
		return err
	}

	if err := a.store.CreateBucketIndex(ctx, ev.Bucket); err != nil {
		reportErr(err)
		return err
	}
	payload, err := json.Marshal(ev.Message)
	if err != nil {
		err = fmt.Errorf("encode message payload: %w", err)
		reportErr(err)
		return err
	}
	if err := a.store.AppendMessages(ctx, &archivestore.ArchivedMessage{
		ID:      ev.Message.ID,
		Bucket:  ev.Bucket,
		Payload: payload,
		AddedAt: ev.Message.Timestamp,
	}); err != nil {
		reportErr(err)
		return err
	}
	reportChange(ev.Message.ID, ev.Bucket)
	return nil
}
