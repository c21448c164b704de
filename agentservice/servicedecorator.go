package agentservice

import (
	"context"
	"fmt"

	"github.com/contenox/coffeehouse/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Create(ctx context.Context, agent Agent) (Agent, error) {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"create_agent",
		"agent",
		"name", agent.Name,
		"provider", agent.Provider,
		"model", agent.Model,
	)
	defer endFn()

	created, err := d.service.Create(ctx, agent)
	if err != nil {
		reportErr(fmt.Errorf("create agent failed: %w", err))
		return Agent{}, err
	}
	reportChange(created.ID, created)
	return created, nil
}

func (d *activityTrackerDecorator) Get(ctx context.Context, id string) (Agent, error) {
	return d.service.Get(ctx, id)
}

func (d *activityTrackerDecorator) Update(ctx context.Context, agent Agent) (Agent, error) {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"update_agent",
		"agent",
		"agent_id", agent.ID,
	)
	defer endFn()

	updated, err := d.service.Update(ctx, agent)
	if err != nil {
		reportErr(fmt.Errorf("update agent failed: %w", err))
		return Agent{}, err
	}
	reportChange(updated.ID, updated)
	return updated, nil
}

func (d *activityTrackerDecorator) Delete(ctx context.Context, id string) error {
	reportErr, reportChange, endFn := d.tracker.Start(
		ctx,
		"delete_agent",
		"agent",
		"agent_id", id,
	)
	defer endFn()

	if err := d.service.Delete(ctx, id); err != nil {
		reportErr(fmt.Errorf("delete agent failed: %w", err))
		return err
	}
	reportChange(id, nil)
	return nil
}

func (d *activityTrackerDecorator) List(ctx context.Context) ([]Agent, error) {
	return d.service.List(ctx)
}

// WithActivityTracker creates a new decorated service that tracks activity
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
