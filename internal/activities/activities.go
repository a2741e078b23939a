package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/internal/workflows"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// heartbeatInterval must stay well below workflows.JobHeartbeatTimeout
const heartbeatInterval = 30 * time.Second

// Sweeper runs one tracking sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*application.SweepResult, error)
}

// MetricsRecomputer rebuilds user dashboard summaries
type MetricsRecomputer interface {
	RecomputeAll(ctx context.Context) (*application.RecomputeResult, error)
}

// JobActivities exposes the periodic jobs to Temporal
type JobActivities struct {
	sweeper    Sweeper
	recomputer MetricsRecomputer
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewJobActivities creates a new JobActivities instance
func NewJobActivities(sweeper Sweeper, recomputer MetricsRecomputer, logger *logging.Logger, m *metrics.Metrics) *JobActivities {
	return &JobActivities{
		sweeper:    sweeper,
		recomputer: recomputer,
		logger:     logger.WithComponent("job-activities"),
		metrics:    m,
	}
}

// RunTrackingSweep polls carriers for every shipped shipment
func (a *JobActivities) RunTrackingSweep(ctx context.Context, input workflows.TrackingSweepInput) (*workflows.TrackingSweepResult, error) {
	stop := keepAlive(ctx, "tracking sweep")
	defer stop()

	start := time.Now()
	res, err := a.sweeper.Sweep(ctx)
	a.metrics.RecordActivityCompleted(workflows.RunTrackingSweepActivity, err == nil, time.Since(start))
	if err != nil {
		a.logger.WithError(err).Error("Tracking sweep activity failed")
		return nil, fmt.Errorf("tracking sweep failed: %w", err)
	}

	return &workflows.TrackingSweepResult{
		Skipped:    res.Skipped,
		Checked:    res.Checked,
		Updated:    res.Updated,
		Unchanged:  res.Unchanged,
		Failed:     res.Failed,
		NDRsRaised: res.NDRsRaised,
		Duration:   res.Duration,
	}, nil
}

// RecomputeUserMetrics rebuilds every user's summary
func (a *JobActivities) RecomputeUserMetrics(ctx context.Context, input workflows.UserMetricsInput) (*workflows.UserMetricsResult, error) {
	stop := keepAlive(ctx, "user metrics")
	defer stop()

	start := time.Now()
	res, err := a.recomputer.RecomputeAll(ctx)
	a.metrics.RecordActivityCompleted(workflows.RecomputeUserMetricsActivity, err == nil, time.Since(start))
	if err != nil {
		a.logger.WithError(err).Error("User metrics activity failed")
		return nil, fmt.Errorf("user metrics recompute failed: %w", err)
	}

	return &workflows.UserMetricsResult{Users: res.Users, Failed: res.Failed}, nil
}

// keepAlive heartbeats until the returned stop func is called
func keepAlive(ctx context.Context, job string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, job)
			}
		}
	}()
	return func() { close(done) }
}
