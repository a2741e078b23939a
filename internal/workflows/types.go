package workflows

import "time"

// TrackingSweepInput is empty for scheduled runs
type TrackingSweepInput struct{}

// TrackingSweepResult is what one sweep did
type TrackingSweepResult struct {
	Skipped    bool          `json:"skipped"`
	Checked    int           `json:"checked"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	NDRsRaised int           `json:"ndrsRaised"`
	Duration   time.Duration `json:"duration"`
}

// UserMetricsInput is empty for scheduled runs
type UserMetricsInput struct{}

// UserMetricsResult is what one recomputation did
type UserMetricsResult struct {
	Users  int `json:"users"`
	Failed int `json:"failed"`
}
