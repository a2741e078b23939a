package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/internal/workflows"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
)

type fakeSweeper struct {
	sweepFn func(ctx context.Context) (*application.SweepResult, error)
}

func (f *fakeSweeper) Sweep(ctx context.Context) (*application.SweepResult, error) {
	return f.sweepFn(ctx)
}

type fakeRecomputer struct {
	recomputeFn func(ctx context.Context) (*application.RecomputeResult, error)
}

func (f *fakeRecomputer) RecomputeAll(ctx context.Context) (*application.RecomputeResult, error) {
	return f.recomputeFn(ctx)
}

func TestRunTrackingSweep_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	sweeper := &fakeSweeper{sweepFn: func(ctx context.Context) (*application.SweepResult, error) {
		return &application.SweepResult{Checked: 5, Updated: 3, Unchanged: 1, Failed: 1, NDRsRaised: 2, Duration: time.Second}, nil
	}}
	activities := NewJobActivities(sweeper, &fakeRecomputer{}, logging.NewNop(), nil)
	env.RegisterActivity(activities.RunTrackingSweep)

	val, err := env.ExecuteActivity(activities.RunTrackingSweep, workflows.TrackingSweepInput{})
	require.NoError(t, err)

	var result workflows.TrackingSweepResult
	require.NoError(t, val.Get(&result))
	require.Equal(t, 5, result.Checked)
	require.Equal(t, 3, result.Updated)
	require.Equal(t, 1, result.Unchanged)
	require.Equal(t, 2, result.NDRsRaised)
	require.Equal(t, time.Second, result.Duration)
}

func TestRunTrackingSweep_Skipped(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	sweeper := &fakeSweeper{sweepFn: func(ctx context.Context) (*application.SweepResult, error) {
		return &application.SweepResult{Skipped: true}, nil
	}}
	activities := NewJobActivities(sweeper, &fakeRecomputer{}, logging.NewNop(), nil)
	env.RegisterActivity(activities.RunTrackingSweep)

	val, err := env.ExecuteActivity(activities.RunTrackingSweep, workflows.TrackingSweepInput{})
	require.NoError(t, err)

	var result workflows.TrackingSweepResult
	require.NoError(t, val.Get(&result))
	require.True(t, result.Skipped)
}

func TestRunTrackingSweep_Failure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	sweeper := &fakeSweeper{sweepFn: func(ctx context.Context) (*application.SweepResult, error) {
		return nil, errors.New("connection refused")
	}}
	m := metrics.New(metrics.DefaultConfig("shipping-worker"))
	activities := NewJobActivities(sweeper, &fakeRecomputer{}, logging.NewNop(), m)
	env.RegisterActivity(activities.RunTrackingSweep)

	_, err := env.ExecuteActivity(activities.RunTrackingSweep, workflows.TrackingSweepInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActivitiesCompleted.WithLabelValues("shipping-worker", workflows.RunTrackingSweepActivity, "error")))
}

func TestRecomputeUserMetrics(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	recomputer := &fakeRecomputer{recomputeFn: func(ctx context.Context) (*application.RecomputeResult, error) {
		return &application.RecomputeResult{Users: 7, Failed: 0}, nil
	}}
	activities := NewJobActivities(&fakeSweeper{}, recomputer, logging.NewNop(), nil)
	env.RegisterActivity(activities.RecomputeUserMetrics)

	val, err := env.ExecuteActivity(activities.RecomputeUserMetrics, workflows.UserMetricsInput{})
	require.NoError(t, err)

	var result workflows.UserMetricsResult
	require.NoError(t, val.Get(&result))
	require.Equal(t, 7, result.Users)
}
