package roundservice

import (
	"context"
	"fmt"

	"github.com/contenox/coffeehouse/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Send(ctx context.Context, recipient, content string) ([]Reply, error) {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"send",
		"round",
		"recipient", recipient,
		"content_length", len(content),
	)
	defer endFn()

	replies, err := d.service.Send(ctx, recipient, content)
	if err != nil {
		reportErr(fmt.Errorf("send failed: %w", err))
		return nil, err
	}
	reportChange(recipient, map[string]int{"replies": len(replies)})
	return replies, nil
}

func (d *activityTrackerDecorator) StartAutoChat(ctx context.Context, cfg AutoChatConfig) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"start_autochat",
		"round",
		"interval", cfg.Interval.String(),
		"round_limit", cfg.RoundLimit,
	)
	defer endFn()

	if err := d.service.StartAutoChat(ctx, cfg); err != nil {
		reportErr(fmt.Errorf("start auto-chat failed: %w", err))
		return err
	}
	reportChange("autochat", cfg)
	return nil
}

func (d *activityTrackerDecorator) StopAutoChat(ctx context.Context) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"stop_autochat",
		"round",
	)
	defer endFn()

	if err := d.service.StopAutoChat(ctx); err != nil {
		reportErr(fmt.Errorf("stop auto-chat failed: %w", err))
		return err
	}
	reportChange("autochat", nil)
	return nil
}

func (d *activityTrackerDecorator) AutoChatStatus(ctx context.Context) (Status, error) {
	return d.service.AutoChatStatus(ctx)
}

// WithActivityTracker creates a new decorated service that tracks activity
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
