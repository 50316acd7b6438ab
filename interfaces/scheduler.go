package interfaces

import (
	"context"
	"time"
)

type SyncScheduler interface {
	Start(ctx context.Context, accountID string, intervalOverride *time.Duration) (bool, error)
	Stop(accountID string) bool
	StartAllActive(ctx context.Context) (int, error)
	StopAll()
	EnableGlobal()
	DisableGlobal()
	SyncNow(ctx context.Context, accountID string) (bool, error)
	Stats() SchedulerStats
	Shutdown(ctx context.Context) error
}

type SchedulerStats struct {
	Enabled     bool       `json:"enabled"`
	ActiveJobs  int        `json:"activeJobs"`
	RunningJobs int        `json:"runningJobs"`
	TotalTicks  int64      `json:"totalTicks"`
	Successes   int64      `json:"successes"`
	Failures    int64      `json:"failures"`
	Skipped     int64      `json:"skipped"`
	Jobs        []JobStats `json:"jobs"`
}

type JobStats struct {
	AccountID           string        `json:"accountId"`
	Interval            time.Duration `json:"interval"`
	Running             bool          `json:"running"`
	Ticks               int           `json:"ticks"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastRunAt           *time.Time    `json:"lastRunAt,omitempty"`
	LastDuration        time.Duration `json:"lastDuration"`
	LastError           string        `json:"lastError,omitempty"`
}
