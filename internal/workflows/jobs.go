package workflows

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// jobActivityOptions runs a job activity exactly once; the next scheduled run picks up failures
func jobActivityOptions(opts workflow.ActivityOptions) workflow.ActivityOptions {
	opts.HeartbeatTimeout = JobHeartbeatTimeout
	opts.RetryPolicy = &temporal.RetryPolicy{MaximumAttempts: 1}
	return opts
}

// TrackingSweepWorkflow runs one tracking sweep. It is started by a schedule
// with overlap policy SKIP.
func TrackingSweepWorkflow(ctx workflow.Context, input TrackingSweepInput) (*TrackingSweepResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting tracking sweep workflow")

	ctx = workflow.WithActivityOptions(ctx, jobActivityOptions(workflow.ActivityOptions{
		StartToCloseTimeout: TrackingSweepActivityTimeout,
	}))

	var result TrackingSweepResult
	if err := workflow.ExecuteActivity(ctx, RunTrackingSweepActivity, input).Get(ctx, &result); err != nil {
		logger.Error("Tracking sweep failed", "error", err)
		return nil, err
	}

	if result.Skipped {
		logger.Info("Tracking sweep skipped, previous sweep still running")
		return &result, nil
	}

	logger.Info("Tracking sweep completed",
		"checked", result.Checked,
		"updated", result.Updated,
		"failed", result.Failed,
		"ndrsRaised", result.NDRsRaised,
	)
	return &result, nil
}

// UserMetricsRecomputeWorkflow rebuilds every user's dashboard summary
func UserMetricsRecomputeWorkflow(ctx workflow.Context, input UserMetricsInput) (*UserMetricsResult, error) {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, jobActivityOptions(workflow.ActivityOptions{
		StartToCloseTimeout: UserMetricsActivityTimeout,
	}))

	var result UserMetricsResult
	if err := workflow.ExecuteActivity(ctx, RecomputeUserMetricsActivity, input).Get(ctx, &result); err != nil {
		logger.Error("User metrics recompute failed", "error", err)
		return nil, err
	}

	logger.Info("User metrics recomputed", "users", result.Users, "failed", result.Failed)
	return &result, nil
}
