package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailsync/interfaces"
	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// CONSTANTS
const (
	cronAppSource = "mailsync-cron"

	// GroupMaintenance serializes jobs that walk every account
	GroupMaintenance = "maintenance"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMaintenance: new(sync.Mutex),
	},
}

type LogCleaner interface {
	ClearOldLogs(maxAge time.Duration) int
}

type CronManager struct {
	cfg      *cron_config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	auditor  interfaces.ConsistencyAuditor
	monitor  LogCleaner
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, k8s kubernetes.Interface, auditor interfaces.ConsistencyAuditor, monitor LogCleaner) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		k8s:     k8s,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		auditor: auditor,
		monitor: monitor,
	}
}

// Start initializes and starts the cron manager with leader election.
// If k8s is nil, it starts in local mode without leader election.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailsync-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	// Channel to track leader election errors
	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Failed to start crons as leader: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager and waits for running jobs.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			return errors.Wrap(err, "could not add heartbeat cron job")
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleConsistencySweep != "" && cm.auditor != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleConsistencySweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMaintenance].Lock()
			defer jobLocks.locks[GroupMaintenance].Unlock()
			cm.sweepConsistency()
		})
		if err != nil {
			return errors.Wrap(err, "could not add consistency sweep cron job")
		}
		cm.jobIDs["consistency_sweep"] = id
		cm.log.Infof("Registered consistency sweep job with schedule: %s", cm.cfg.CronScheduleConsistencySweep)
	}

	if cm.cfg.CronScheduleMonitorLogCleanup != "" && cm.monitor != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleMonitorLogCleanup, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.cleanupMonitorLogs()
		})
		if err != nil {
			return errors.Wrap(err, "could not add monitor log cleanup cron job")
		}
		cm.jobIDs["monitor_log_cleanup"] = id
		cm.log.Infof("Registered monitor log cleanup job with schedule: %s", cm.cfg.CronScheduleMonitorLogCleanup)
	}

	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) sweepConsistency() {
	cm.log.Info("Running consistency sweep")

	timeout := cm.cfg.ConsistencySweepTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(utils.SetAppSourceInContext(context.Background(), cronAppSource), timeout)
	defer cancel()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepConsistency")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	results := cm.auditor.MaintainAll(ctx)

	failed := 0
	for accountID, result := range results {
		if result == nil || !result.Success {
			failed++
			if result != nil {
				cm.log.Warnf("[%s] consistency sweep: %s", accountID, result.Error)
			}
		}
	}
	span.SetTag("accounts", len(results))
	span.SetTag("failed", failed)
	cm.log.Infof("Consistency sweep completed: %d account(s), %d with errors", len(results), failed)
}

func (cm *CronManager) cleanupMonitorLogs() {
	maxAge := cm.cfg.MonitorLogMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	removed := cm.monitor.ClearOldLogs(maxAge)
	cm.log.Debugf("Monitor log cleanup removed %d entries", removed)
}
