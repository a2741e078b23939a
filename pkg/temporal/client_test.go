package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

func TestScheduleOptions(t *testing.T) {
	opts := ScheduleSpec{
		ID:           "tracking-sweep",
		Every:        time.Hour,
		WorkflowName: WorkflowNames.TrackingSweep,
		TaskQueue:    TaskQueues.Shipping,
	}.options()

	assert.Equal(t, "tracking-sweep", opts.ID)
	assert.Equal(t, enumspb.SCHEDULE_OVERLAP_POLICY_SKIP, opts.Overlap)
	require.Len(t, opts.Spec.Intervals, 1)
	assert.Equal(t, time.Hour, opts.Spec.Intervals[0].Every)

	action, ok := opts.Action.(*client.ScheduleWorkflowAction)
	require.True(t, ok)
	assert.Equal(t, "TrackingSweepWorkflow", action.Workflow)
	assert.Equal(t, "shipping-queue", action.TaskQueue)
	assert.Equal(t, "tracking-sweep-run", action.ID)
}

func TestDefaultWorkerOptions(t *testing.T) {
	opts := DefaultWorkerOptions(TaskQueues.Shipping).sdk()

	assert.Equal(t, 20, opts.MaxConcurrentActivityExecutionSize)
	assert.Equal(t, 20, opts.MaxConcurrentWorkflowTaskExecutionSize)
	assert.Equal(t, 2, opts.MaxConcurrentActivityTaskPollers)
}
