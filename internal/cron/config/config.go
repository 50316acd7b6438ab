package cron_config

import "time"

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Consistency maintenance for every syncable account, hourly
	CronScheduleConsistencySweep string `env:"CRON_SCHEDULE_CONSISTENCY_SWEEP" envDefault:"0 30 * * * *"`
	// Sync monitor log cleanup, every 6 hours
	CronScheduleMonitorLogCleanup string        `env:"CRON_SCHEDULE_MONITOR_LOG_CLEANUP" envDefault:"0 0 */6 * * *"`
	MonitorLogMaxAge              time.Duration `env:"CRON_MONITOR_LOG_MAX_AGE" envDefault:"24h"`
	ConsistencySweepTimeout       time.Duration `env:"CRON_CONSISTENCY_SWEEP_TIMEOUT" envDefault:"30m"`
}
