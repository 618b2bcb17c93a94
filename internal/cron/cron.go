package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	cron_config "github.com/inboundly/mailcore/internal/cron/config"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
)

// GroupMailcore serializes the maintenance jobs against each other; the
// backfill sweep and the orphan purge touch the same tables.
const GroupMailcore = "mailcore"

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMailcore: new(sync.Mutex),
	},
}

type CronManager struct {
	log          logger.Logger
	cron         *cronv3.Cron
	stopCh       chan struct{}
	jobIDs       map[string]cronv3.EntryID
	backfill     interfaces.BackfillService
	repositories *repository.Repositories
	cronConfig   cron_config.Config
}

func NewCronManager(log logger.Logger, backfill interfaces.BackfillService, repositories *repository.Repositories) *CronManager {
	return &CronManager{
		log:          log,
		stopCh:       make(chan struct{}),
		jobIDs:       make(map[string]cronv3.EntryID),
		backfill:     backfill,
		repositories: repositories,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	if err := env.Parse(&cm.cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cm.cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cm.cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cronConfig.CronScheduleHeartbeat)
	}

	if cm.cronConfig.CronScheduleBackfillSweep != "" {
		id, err := c.AddFunc(cm.cronConfig.CronScheduleBackfillSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailcore].Lock()
			defer jobLocks.locks[GroupMailcore].Unlock()
			cm.runBackfillSweep()
		})
		if err != nil {
			cm.log.Fatalf("Could not add backfill sweep cron job: %v", err)
		}
		cm.jobIDs["backfill_sweep"] = id
		cm.log.Infof("Registered backfill sweep job with schedule: %s", cm.cronConfig.CronScheduleBackfillSweep)
	}

	if cm.cronConfig.CronScheduleOrphanPurge != "" {
		id, err := c.AddFunc(cm.cronConfig.CronScheduleOrphanPurge, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailcore].Lock()
			defer jobLocks.locks[GroupMailcore].Unlock()
			cm.purgeStaleOrphans()
		})
		if err != nil {
			cm.log.Fatalf("Could not add orphan purge cron job: %v", err)
		}
		cm.jobIDs["orphan_purge"] = id
		cm.log.Infof("Registered orphan purge job with schedule: %s", cm.cronConfig.CronScheduleOrphanPurge)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Seconds field enabled, with panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// runBackfillSweep picks up messages the live resolution path missed, across
// all accounts.
func (cm *CronManager) runBackfillSweep() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runBackfillSweep")
	defer span.Finish()
	tracing.SetDefaultCronSpanTags(ctx, span)

	result, err := cm.backfill.Run(ctx, dto.BackfillRequest{
		MaxItems: cm.cronConfig.BackfillSweepMaxItems,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Backfill sweep failed: %v", err)
		return
	}

	if result.Processed > 0 {
		cm.log.Infof("Backfill sweep processed %d messages (%d new threads, %d errors)", result.Processed, result.ThreadsCreated, result.Errors)
	}
}

// purgeStaleOrphans drops orphan reference records past the retention window.
// An ancestor this old is not going to arrive.
func (cm *CronManager) purgeStaleOrphans() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.purgeStaleOrphans")
	defer span.Finish()
	tracing.SetDefaultCronSpanTags(ctx, span)

	cutoff := time.Now().UTC().AddDate(0, 0, -cm.cronConfig.OrphanRetentionDays)
	if err := cm.repositories.OrphanReferenceRepository.DeleteOlderThan(ctx, cutoff); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Orphan purge failed: %v", err)
		return
	}

	cm.log.Info("Orphan purge completed")
}
