package workflows

import "time"

// Schedule configuration
const (
	// TrackingSweepInterval is how often shipped shipments are polled
	TrackingSweepInterval time.Duration = time.Hour

	// TrackingSweepScheduleID is the ID of the Temporal schedule
	TrackingSweepScheduleID = "tracking-sweep-schedule"

	// UserMetricsInterval is how often dashboard summaries are rebuilt
	UserMetricsInterval time.Duration = 3 * time.Hour

	// UserMetricsScheduleID is the ID of the Temporal schedule
	UserMetricsScheduleID = "user-metrics-schedule"
)

// Activity timeouts. A sweep polls every carrier sequentially, so it gets the
// longest budget; heartbeats keep it alive.
const (
	TrackingSweepActivityTimeout time.Duration = 50 * time.Minute
	UserMetricsActivityTimeout   time.Duration = 30 * time.Minute
	JobHeartbeatTimeout          time.Duration = 2 * time.Minute
)

// Activity names registered by the worker
const (
	RunTrackingSweepActivity     = "RunTrackingSweep"
	RecomputeUserMetricsActivity = "RecomputeUserMetrics"
)
