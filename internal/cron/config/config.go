package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Backfill sweep over unassigned messages, every 15 minutes
	CronScheduleBackfillSweep string `env:"CRON_SCHEDULE_BACKFILL_SWEEP" envDefault:"0 */15 * * * *"`
	// Orphan reference purge, daily at 3am
	CronScheduleOrphanPurge string `env:"CRON_SCHEDULE_ORPHAN_PURGE" envDefault:"0 0 3 * * *"`

	// Orphan records older than this many days are purged
	OrphanRetentionDays int `env:"ORPHAN_RETENTION_DAYS" envDefault:"90"`
	// Item cap for each scheduled backfill sweep
	BackfillSweepMaxItems int `env:"BACKFILL_SWEEP_MAX_ITEMS" envDefault:"5000"`
}
