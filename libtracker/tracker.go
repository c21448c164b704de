// Package libtracker provides activity tracking for service operations.
// Services are wrapped with decorators that call Start for every operation;
// the returned callbacks report errors, state changes, and completion.
package libtracker

import (
	"context"
	"log/slog"
	"time"
)

type contextKey string

// ReportErrFn reports an operation failure.
type ReportErrFn func(err error)

// ReportChangeFn reports a state change produced by the operation,
// identified by the id of the entity that changed.
type ReportChangeFn func(id string, data any)

// EndFn marks the operation as finished.
type EndFn func()

// ActivityTracker observes the lifecycle of service operations.
// Implementations must be safe for concurrent use.
type ActivityTracker interface {
	Start(ctx context.Context, operation string, subject string, kvArgs ...any) (ReportErrFn, ReportChangeFn, EndFn)
}

// LogActivityTracker writes activity to a slog.Logger.
type LogActivityTracker struct {
	logger *slog.Logger
}

// NewLogActivityTracker creates a tracker that logs all activity.
func NewLogActivityTracker(logger *slog.Logger) *LogActivityTracker {
	return &LogActivityTracker{logger: logger}
}

func (t *LogActivityTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (ReportErrFn, ReportChangeFn, EndFn) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	if !ok || requestID == "" {
		requestID = "SERVERBUG-missing-request-id"
	}
	start := time.Now()
	attrs := append([]any{
		"operation", operation,
		"subject", subject,
		"request_id", requestID,
	}, kvArgs...)
	t.logger.Debug("operation started", attrs...)

	reportErr := func(err error) {
		t.logger.Error("operation failed", append(attrs, "error", err)...)
	}
	reportChange := func(id string, data any) {
		t.logger.Info("state changed", append(attrs, "entity_id", id, "data", data)...)
	}
	end := func() {
		t.logger.Debug("operation finished", append(attrs, "duration", time.Since(start))...)
	}
	return reportErr, reportChange, end
}

// ChainedTracker fans activity out to multiple trackers in order.
type ChainedTracker []ActivityTracker

func (c ChainedTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (ReportErrFn, ReportChangeFn, EndFn) {
	reportErrs := make([]ReportErrFn, 0, len(c))
	reportChanges := make([]ReportChangeFn, 0, len(c))
	ends := make([]EndFn, 0, len(c))
	for _, tracker := range c {
		reportErr, reportChange, end := tracker.Start(ctx, operation, subject, kvArgs...)
		reportErrs = append(reportErrs, reportErr)
		reportChanges = append(reportChanges, reportChange)
		ends = append(ends, end)
	}
	return func(err error) {
			for _, f := range reportErrs {
				f(err)
			}
		}, func(id string, data any) {
			for _, f := range reportChanges {
				f(id, data)
			}
		}, func() {
			for _, f := range ends {
				f()
			}
		}
}

// NoopTracker discards all activity. Useful in tests.
type NoopTracker struct{}

func (NoopTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (ReportErrFn, ReportChangeFn, EndFn) {
	return func(error) {}, func(string, any) {}, func() {}
}

var (
	_ ActivityTracker = (*LogActivityTracker)(nil)
	_ ActivityTracker = ChainedTracker(nil)
	_ ActivityTracker = NoopTracker{}
)
