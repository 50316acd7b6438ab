package autosync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	Enabled       bool          `env:"AUTOSYNC_ENABLED" envDefault:"true"`
	StartDelay    time.Duration `env:"AUTOSYNC_START_DELAY" envDefault:"5s"`
	RetryDelay    time.Duration `env:"AUTOSYNC_RETRY_DELAY" envDefault:"30s"`
	RestartDelay  time.Duration `env:"AUTOSYNC_RESTART_DELAY" envDefault:"2s"`
	ShutdownGrace time.Duration `env:"AUTOSYNC_SHUTDOWN_GRACE" envDefault:"30s"`
}

// Initializer starts sync for every active account once the store is reachable.
type Initializer struct {
	cfg       Config
	scheduler interfaces.SyncScheduler
	accounts  interfaces.MailboxAccountRepository
	log       logger.Logger

	initMu      sync.Mutex
	initialized atomic.Bool
}

func NewInitializer(cfg Config, scheduler interfaces.SyncScheduler, accounts interfaces.MailboxAccountRepository, log logger.Logger) *Initializer {
	return &Initializer{cfg: cfg, scheduler: scheduler, accounts: accounts, log: log}
}

// Initialize retries every RetryDelay until it succeeds or ctx ends.
// Concurrent calls wait for the first one.
func (i *Initializer) Initialize(ctx context.Context) error {
	i.initMu.Lock()
	defer i.initMu.Unlock()

	if i.initialized.Load() {
		i.log.Debug("auto sync already initialized")
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := i.initialize(ctx)
		if err == nil {
			i.initialized.Store(true)
			return nil
		}
		if errors.Is(err, mailsync_errors.ErrSchedulerStopped) || ctx.Err() != nil {
			return err
		}

		i.log.Errorf("auto sync initialization attempt %d failed, retrying in %s: %v", attempt, i.cfg.RetryDelay, err)
		if err := sleep(ctx, i.cfg.RetryDelay); err != nil {
			return errors.Wrap(err, "auto sync initialization aborted")
		}
	}
}

func (i *Initializer) initialize(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Initializer.Initialize")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := i.accounts.Ping(ctx); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "database not reachable")
	}

	accounts, err := i.accounts.ListSyncable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to list syncable accounts")
	}
	if len(accounts) == 0 {
		i.log.Info("no active mailbox accounts, auto sync idle")
		return nil
	}
	i.log.Infof("found %d active mailbox account(s)", len(accounts))

	if err := sleep(ctx, i.cfg.StartDelay); err != nil {
		return err
	}

	started, err := i.scheduler.StartAllActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("started", started)
	i.log.Infof("auto sync started for %d account(s)", started)
	return nil
}

// Stop halts every job and waits for in-flight ticks until ctx ends.
func (i *Initializer) Stop(ctx context.Context) error {
	i.scheduler.StopAll()
	i.initialized.Store(false)
	if err := i.scheduler.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "sync scheduler shutdown")
	}
	i.log.Info("auto sync stopped")
	return nil
}

func (i *Initializer) IsActive() bool {
	return i.initialized.Load() && i.scheduler.Stats().ActiveJobs > 0
}

// Restart stops every job and initializes again; the scheduler itself keeps running.
func (i *Initializer) Restart(ctx context.Context) error {
	i.log.Info("restarting auto sync")
	i.scheduler.StopAll()
	i.initialized.Store(false)
	if err := sleep(ctx, i.cfg.RestartDelay); err != nil {
		return err
	}
	return i.Initialize(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
