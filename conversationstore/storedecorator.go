package conversationstore

import (
	"context"
	"fmt"

	"github.com/contenox/coffeehouse/libtracker"
)

type activityTrackerDecorator struct {
	store   Store
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) SwitchMode(ctx context.Context, bucket string) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"switch_mode",
		"conversation",
		"bucket", bucket,
	)
	defer endFn()

	if err := d.store.SwitchMode(ctx, bucket); err != nil {
		reportErr(fmt.Errorf("switch mode failed: %w", err))
		return err
	}
	reportChange(bucket, map[string]string{"mode": bucket})
	return nil
}

func (d *activityTrackerDecorator) CurrentMode(ctx context.Context) (string, error) {
	return d.store.CurrentMode(ctx)
}

func (d *activityTrackerDecorator) Append(ctx context.Context, bucket string, msg Message) (Message, error) {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"append_message",
		"conversation",
		"bucket", bucket,
		"sender", msg.Sender,
		"recipient", msg.Recipient,
	)
	defer endFn()

	committed, err := d.store.Append(ctx, bucket, msg)
	if err != nil {
		reportErr(fmt.Errorf("append failed: %w", err))
		return Message{}, err
	}
	reportChange(committed.ID, committed)
	return committed, nil
}

func (d *activityTrackerDecorator) MessagesIn(ctx context.Context, bucket string) ([]Message, error) {
	return d.store.MessagesIn(ctx, bucket)
}

func (d *activityTrackerDecorator) CurrentMessages(ctx context.Context) ([]Message, error) {
	return d.store.CurrentMessages(ctx)
}

func (d *activityTrackerDecorator) MessagesForAgent(ctx context.Context, agentID string) ([]Message, error) {
	return d.store.MessagesForAgent(ctx, agentID)
}

func (d *activityTrackerDecorator) Buckets(ctx context.Context) ([]string, error) {
	return d.store.Buckets(ctx)
}

func (d *activityTrackerDecorator) Export(ctx context.Context) (State, error) {
	return d.store.Export(ctx)
}

func (d *activityTrackerDecorator) Import(ctx context.Context, state State) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"import_state",
		"conversation",
		"buckets", len(state.Buckets),
	)
	defer endFn()

	if err := d.store.Import(ctx, state); err != nil {
		reportErr(fmt.Errorf("import failed: %w", err))
		return err
	}
	reportChange("state", map[string]int{"buckets": len(state.Buckets)})
	return nil
}

func (d *activityTrackerDecorator) ClearBucket(ctx context.Context, bucket string) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"clear_bucket",
		"conversation",
		"bucket", bucket,
	)
	defer endFn()

	if err := d.store.ClearBucket(ctx, bucket); err != nil {
		reportErr(fmt.Errorf("clear bucket failed: %w", err))
		return err
	}
	reportChange(bucket, nil)
	return nil
}

func (d *activityTrackerDecorator) ClearAll(ctx context.Context) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"clear_all",
		"conversation",
	)
	defer endFn()

	if err := d.store.ClearAll(ctx); err != nil {
		reportErr(fmt.Errorf("clear all failed: %w", err))
		return err
	}
	reportChange("state", nil)
	return nil
}

// WithActivityTracker creates a new decorated store that tracks mutations.
func WithActivityTracker(store Store, tracker libtracker.ActivityTracker) Store {
	return &activityTrackerDecorator{
		store:   store,
		tracker: tracker,
	}
}

var _ Store = (*activityTrackerDecorator)(nil)
