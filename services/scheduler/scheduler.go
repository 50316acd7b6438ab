package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	skipReasonDisabled = "disabled"
	skipReasonRunning  = "running"
)

type Config struct {
	DefaultInterval time.Duration `env:"SYNC_DEFAULT_INTERVAL" envDefault:"3m"`
	MinInterval     time.Duration `env:"SYNC_MIN_INTERVAL" envDefault:"30s"`
	AuditEvery      int           `env:"SYNC_AUDIT_EVERY" envDefault:"5"`
	TickTimeout     time.Duration `env:"SYNC_TICK_TIMEOUT" envDefault:"10m"`
}

type syncJob struct {
	accountID string
	entryID   cronv3.EntryID
	interval  time.Duration
	// shared by every job the account ever has, so a stopped job's
	// in-flight tick still blocks its successor
	running *atomic.Bool

	mu                  sync.Mutex
	ticks               int
	successfulTicks     int
	consecutiveFailures int
	lastRunAt           *time.Time
	lastDuration        time.Duration
	lastError           string
}

func (j *syncJob) stats() interfaces.JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return interfaces.JobStats{
		AccountID:           j.accountID,
		Interval:            j.interval,
		Running:             j.running.Load(),
		Ticks:               j.ticks,
		ConsecutiveFailures: j.consecutiveFailures,
		LastRunAt:           j.lastRunAt,
		LastDuration:        j.lastDuration,
		LastError:           j.lastError,
	}
}

// Scheduler runs one repeating sync job per account. A job never overlaps
// itself; jobs of different accounts run concurrently.
type Scheduler struct {
	cfg      Config
	cron     *cronv3.Cron
	syncer   interfaces.AccountSyncer
	auditor  interfaces.ConsistencyAuditor
	notifier interfaces.Notifier
	repos    *repository.Repositories
	monitor  *Monitor
	log      logger.Logger

	mu      sync.Mutex
	jobs    map[string]*syncJob
	running map[string]*atomic.Bool
	closed  bool
	wg      sync.WaitGroup

	enabled atomic.Bool
	rootCtx context.Context
	cancel  context.CancelFunc

	totalTicks atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	skipped    atomic.Int64
}

func NewScheduler(cfg Config, syncer interfaces.AccountSyncer, auditor interfaces.ConsistencyAuditor, notifier interfaces.Notifier,
	repos *repository.Repositories, monitor *Monitor, log logger.Logger) *Scheduler {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 3 * time.Minute
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 30 * time.Second
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 10 * time.Minute
	}
	if monitor == nil {
		monitor = NewMonitor(nil, log)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		syncer:   syncer,
		auditor:  auditor,
		notifier: notifier,
		repos:    repos,
		monitor:  monitor,
		log:      log,
		jobs:     make(map[string]*syncJob),
		running:  make(map[string]*atomic.Bool),
		rootCtx:  rootCtx,
		cancel:   cancel,
	}
	s.enabled.Store(true)
	s.cron = cronv3.New(cronv3.WithChain(cronv3.Recover(cronLogger{log: log})))
	s.cron.Start()
	return s
}

func (s *Scheduler) runningFlagLocked(accountID string) *atomic.Bool {
	flag, ok := s.running[accountID]
	if !ok {
		flag = new(atomic.Bool)
		s.running[accountID] = flag
	}
	return flag
}

func (s *Scheduler) Monitor() *Monitor {
	return s.monitor
}

func (s *Scheduler) interval(override *time.Duration, accountSeconds int) time.Duration {
	interval := s.cfg.DefaultInterval
	if override != nil && *override > 0 {
		interval = *override
	} else if accountSeconds > 0 {
		interval = time.Duration(accountSeconds) * time.Second
	}
	if interval < s.cfg.MinInterval {
		interval = s.cfg.MinInterval
	}
	return interval
}

// Start registers the account's job, runs one tick and then schedules the
// repeating timer. It returns true when a job exists afterwards.
func (s *Scheduler) Start(ctx context.Context, accountID string, intervalOverride *time.Duration) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, mailsync_errors.ErrSchedulerStopped
	}
	if _, ok := s.jobs[accountID]; ok {
		s.mu.Unlock()
		s.log.Debugf("[%s] sync job already running", accountID)
		return true, nil
	}
	s.mu.Unlock()

	account, err := s.repos.MailboxAccountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "failed to load account")
	}
	if account == nil {
		s.log.Warnf("[%s] cannot start sync: account not found", accountID)
		return false, nil
	}
	if !account.IsSyncable() {
		s.log.Infof("[%s] cannot start sync: account inactive or sync disabled", accountID)
		return false, nil
	}

	job := &syncJob{
		accountID: accountID,
		interval:  s.interval(intervalOverride, account.SyncIntervalSeconds),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, mailsync_errors.ErrSchedulerStopped
	}
	if _, ok := s.jobs[accountID]; ok {
		s.mu.Unlock()
		return true, nil
	}
	job.running = s.runningFlagLocked(accountID)
	s.jobs[accountID] = job
	s.mu.Unlock()

	s.runTick(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, mailsync_errors.ErrSchedulerStopped
	}
	if s.jobs[accountID] != job {
		// stopped while the first tick ran
		return false, nil
	}
	job.entryID = s.cron.Schedule(cronv3.Every(job.interval), cronv3.FuncJob(func() {
		s.runTick(job)
	}))
	span.SetTag("interval", job.interval.String())
	s.log.Infof("[%s] sync job started, interval %s", accountID, job.interval)
	return true, nil
}

// Stop removes the job; a tick already in flight finishes on its own.
func (s *Scheduler) Stop(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[accountID]
	if !ok {
		return false
	}
	if job.entryID != 0 {
		s.cron.Remove(job.entryID)
	}
	delete(s.jobs, accountID)
	s.log.Infof("[%s] sync job stopped", accountID)
	return true
}

func (s *Scheduler) StartAllActive(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.StartAllActive")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.MailboxAccountRepository.ListSyncable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to list syncable accounts")
	}
	s.log.Infof("starting sync for %d active account(s)", len(accounts))

	started := 0
	for _, account := range accounts {
		ok, err := s.Start(ctx, account.ID, nil)
		if err != nil {
			if errors.Is(err, mailsync_errors.ErrSchedulerStopped) {
				return started, err
			}
			s.log.Errorf("[%s] failed to start sync: %v", account.ID, err)
			continue
		}
		if ok {
			started++
		}
	}
	span.SetTag("started", started)
	return started, nil
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.log.Infof("stopping %d sync job(s)", len(ids))
	for _, id := range ids {
		s.Stop(id)
	}
}

func (s *Scheduler) EnableGlobal() {
	s.enabled.Store(true)
	s.log.Info("sync globally enabled")
}

func (s *Scheduler) DisableGlobal() {
	s.enabled.Store(false)
	s.log.Info("sync globally disabled")
}

// SyncNow runs a manual tick for a scheduled account. It returns false when
// the tick was skipped.
func (s *Scheduler) SyncNow(ctx context.Context, accountID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.SyncNow")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	s.mu.Lock()
	job, ok := s.jobs[accountID]
	s.mu.Unlock()
	if !ok {
		return false, errors.Wrapf(mailsync_errors.ErrSyncJobNotFound, "[%s]", accountID)
	}

	ran, err := s.runTick(job)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return ran, err
}

func (s *Scheduler) Stats() interfaces.SchedulerStats {
	s.mu.Lock()
	jobs := make([]*syncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	stats := interfaces.SchedulerStats{
		Enabled:    s.enabled.Load(),
		ActiveJobs: len(jobs),
		TotalTicks: s.totalTicks.Load(),
		Successes:  s.successes.Load(),
		Failures:   s.failures.Load(),
		Skipped:    s.skipped.Load(),
		Jobs:       make([]interfaces.JobStats, 0, len(jobs)),
	}
	for _, job := range jobs {
		js := job.stats()
		if js.Running {
			stats.RunningJobs++
		}
		stats.Jobs = append(stats.Jobs, js)
	}
	sort.Slice(stats.Jobs, func(i, j int) bool { return stats.Jobs[i].AccountID < stats.Jobs[j].AccountID })
	return stats
}

// Shutdown stops the timers and waits for in-flight ticks until ctx ends,
// then cancels whatever is still running.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		s.log.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("sync scheduler shutdown timed out, cancelling in-flight ticks")
		return ctx.Err()
	}
}

func (s *Scheduler) runTick(job *syncJob) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, mailsync_errors.ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.rootCtx, s.cfg.TickTimeout)
	defer cancel()
	ctx = utils.SetAccountIdInContext(ctx, job.accountID)

	return s.tick(ctx, job)
}

func (s *Scheduler) tick(ctx context.Context, job *syncJob) (bool, error) {
	if !s.enabled.Load() {
		s.skip(job, skipReasonDisabled)
		return false, nil
	}
	if !job.running.CompareAndSwap(false, true) {
		s.skip(job, skipReasonRunning)
		return false, nil
	}
	defer job.running.Store(false)

	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Tick")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, job.accountID)

	s.totalTicks.Add(1)
	s.monitor.LogStart(job.accountID)
	start := time.Now()

	unreadBefore, err := s.repos.MessageRepository.CountUnread(ctx, job.accountID)
	if err != nil {
		s.log.Warnf("[%s] failed to count unread messages: %v", job.accountID, err)
		unreadBefore = -1
	}

	result, err := s.syncer.SyncAccount(ctx, job.accountID)
	if err != nil {
		duration := time.Since(start)
		tracing.TraceErr(span, err)
		s.failures.Add(1)
		s.monitor.LogError(job.accountID, err, duration)
		s.log.Errorf("[%s] sync failed after %s: %v", job.accountID, duration.Round(time.Millisecond), err)

		if job.recordFailure(err, duration) == 1 {
			s.notifier.NotifySyncError(ctx, job.accountID, err)
		}
		return true, err
	}

	if job.recordSuccessfulTick()%s.auditEvery() == 0 && s.auditor != nil {
		s.audit(ctx, job.accountID)
	}

	if unreadBefore >= 0 {
		unreadAfter, err := s.repos.MessageRepository.CountUnread(ctx, job.accountID)
		if err != nil {
			s.log.Warnf("[%s] failed to count unread messages: %v", job.accountID, err)
		} else if unreadAfter > unreadBefore {
			s.notifier.NotifyNewMail(ctx, job.accountID, dto.NewMailSummary{
				Type:  enum.NotificationUnreadIncrease,
				Count: int(unreadAfter - unreadBefore),
			})
		}
	}

	if err := s.repos.MailboxAccountRepository.UpdateLastSync(ctx, job.accountID, utils.Now()); err != nil {
		s.log.Warnf("[%s] failed to persist last sync time: %v", job.accountID, err)
	}

	duration := time.Since(start)
	processed := result.MessagesProcessed()
	job.recordSuccess(duration)
	s.successes.Add(1)
	s.monitor.LogSuccess(job.accountID, duration, processed)
	s.log.Infof("[%s] sync completed in %s, %d messages processed", job.accountID, duration.Round(time.Millisecond), processed)
	return true, nil
}

func (s *Scheduler) auditEvery() int {
	if s.cfg.AuditEvery <= 0 {
		return 5
	}
	return s.cfg.AuditEvery
}

func (s *Scheduler) audit(ctx context.Context, accountID string) {
	result, err := s.auditor.MaintainConsistency(ctx, accountID)
	if err != nil {
		s.log.Warnf("[%s] consistency maintenance failed: %v", accountID, err)
		s.monitor.LogAudit(accountID, false)
		return
	}
	s.monitor.LogAudit(accountID, result.Success)
	if result.Fixes != nil && result.Fixes.FoldersFixed > 0 {
		s.log.Infof("[%s] consistency maintenance fixed %d folder(s)", accountID, result.Fixes.FoldersFixed)
	}
}

func (s *Scheduler) skip(job *syncJob, reason string) {
	s.skipped.Add(1)
	s.monitor.LogSkip(job.accountID, reason)
	s.log.Infof("[%s] sync tick skipped: %s", job.accountID, reason)
}

func (j *syncJob) recordSuccessfulTick() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.successfulTicks++
	return j.successfulTicks
}

func (j *syncJob) recordSuccess(duration time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := utils.Now()
	j.ticks++
	j.consecutiveFailures = 0
	j.lastRunAt = &now
	j.lastDuration = duration
	j.lastError = ""
}

// recordFailure returns the number of consecutive failures including this one.
func (j *syncJob) recordFailure(err error, duration time.Duration) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := utils.Now()
	j.ticks++
	j.consecutiveFailures++
	j.lastRunAt = &now
	j.lastDuration = duration
	j.lastError = err.Error()
	return j.consecutiveFailures
}

var _ interfaces.SyncScheduler = (*Scheduler)(nil)
