// Package temporal dials Temporal for the worker binary and registers the
// schedules behind the recurring shipping jobs.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
)

// Config holds Temporal client configuration
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

// TaskQueues the shipping worker polls
var TaskQueues = struct {
	Shipping string
}{
	Shipping: "shipping-queue",
}

// WorkflowNames are the registered workflow type names
var WorkflowNames = struct {
	TrackingSweep        string
	UserMetricsRecompute string
}{
	TrackingSweep:        "TrackingSweepWorkflow",
	UserMetricsRecompute: "UserMetricsRecomputeWorkflow",
}

// Client is a dialled Temporal client
type Client struct {
	sdk client.Client
}

// NewClient dials Temporal. SDK logs go through logger.
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial Temporal at %s: %w", config.HostPort, err)
	}
	return &Client{sdk: c}, nil
}

func (c *Client) Close() {
	c.sdk.Close()
}

// WorkerOptions bounds how much work one worker process takes on
type WorkerOptions struct {
	TaskQueue string
	Pollers   int
	// Concurrency caps both activity and workflow task slots
	Concurrency int
}

// DefaultWorkerOptions suits the two scheduled jobs, which never run more
// than once at a time
func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{TaskQueue: taskQueue, Pollers: 2, Concurrency: 20}
}

func (o *WorkerOptions) sdk() worker.Options {
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     o.Concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: o.Concurrency,
		MaxConcurrentActivityTaskPollers:       o.Pollers,
		MaxConcurrentWorkflowTaskPollers:       o.Pollers,
	}
}

// NewWorker creates a worker on opts.TaskQueue
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.sdk, opts.TaskQueue, opts.sdk())
}

// ScheduleSpec describes a recurring workflow start
type ScheduleSpec struct {
	ID           string
	Every        time.Duration
	WorkflowName string
	TaskQueue    string
	Args         []interface{}
}

// EnsureSchedule registers an interval schedule whose runs never overlap.
// An existing schedule with the same ID is left untouched.
func (c *Client) EnsureSchedule(ctx context.Context, spec ScheduleSpec) error {
	_, err := c.sdk.ScheduleClient().Create(ctx, spec.options())
	if err != nil && !errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("failed to create schedule %s: %w", spec.ID, err)
	}
	return nil
}

func (spec ScheduleSpec) options() client.ScheduleOptions {
	return client.ScheduleOptions{
		ID: spec.ID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: spec.Every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        spec.ID + "-run",
			Workflow:  spec.WorkflowName,
			TaskQueue: spec.TaskQueue,
			Args:      spec.Args,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	}
}
