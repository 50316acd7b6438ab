package imap

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type PoolConfig struct {
	MaxPerAccount   int           `env:"IMAP_POOL_MAX_PER_ACCOUNT" envDefault:"3"`
	TTL             time.Duration `env:"IMAP_POOL_TTL" envDefault:"3m"`
	SweepInterval   time.Duration `env:"IMAP_POOL_SWEEP_INTERVAL" envDefault:"30s"`
	ProbeTimeout    time.Duration `env:"IMAP_POOL_PROBE_TIMEOUT" envDefault:"5s"`
	LogoutTimeout   time.Duration `env:"IMAP_POOL_LOGOUT_TIMEOUT" envDefault:"5s"`
	ConnectAttempts int           `env:"IMAP_CONNECT_ATTEMPTS" envDefault:"3"`
	BackoffUnit     time.Duration `env:"IMAP_CONNECT_BACKOFF" envDefault:"1s"`
}

type slotState int

const (
	stateConnecting slotState = iota
	stateIdle
	stateInUse
	// idle but held by the sweep; evictable, never handed out
	stateProbing
)

func (s slotState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateIdle:
		return "idle"
	case stateProbing:
		return "probing"
	default:
		return "in-use"
	}
}

// PooledSession is a session handed out by the pool. It belongs to exactly one
// holder between Acquire and Release.
type PooledSession struct {
	ID        string
	AccountID string
	Session   Session

	credentialKey string
	createdAt     time.Time
	lastUsedAt    time.Time
	state         slotState
	healthy       bool
	folderLock    chan struct{}
}

// lockFolder serialises folder selection on the session.
func (ps *PooledSession) lockFolder(ctx context.Context, timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ps.folderLock <- struct{}{}:
		return func() { <-ps.folderLock }, nil
	case <-timer.C:
		return nil, mailsync_errors.ErrFolderLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pool keeps a bounded set of authenticated sessions per account.
type Pool struct {
	cfg     PoolConfig
	dialer  Dialer
	log     logger.Logger
	metrics *PoolMetrics
	now     func() time.Time

	mu       sync.Mutex
	accounts map[string][]*PooledSession
	closed   bool

	stopOnce  sync.Once
	stopSweep chan struct{}
	sweepDone chan struct{}
}

func NewPool(cfg PoolConfig, dialer Dialer, log logger.Logger, metrics *PoolMetrics) *Pool {
	if cfg.MaxPerAccount <= 0 {
		cfg.MaxPerAccount = 3
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 3
	}
	if metrics == nil {
		metrics = NewPoolMetrics(nil)
	}
	return &Pool{
		cfg:       cfg,
		dialer:    dialer,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
		accounts:  make(map[string][]*PooledSession),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

// Start runs the background health sweep until CloseAll.
func (p *Pool) Start() {
	if p.cfg.SweepInterval <= 0 {
		close(p.sweepDone)
		return
	}
	go func() {
		defer close(p.sweepDone)
		defer tracing.RecoverAndLogToJaeger(p.log)

		ticker := time.NewTicker(p.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Sweep(context.Background())
			case <-p.stopSweep:
				return
			}
		}
	}()
}

func (p *Pool) Acquire(ctx context.Context, accountID string, creds Credentials) (*PooledSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Pool.Acquire")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	key := creds.Key()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, mailsync_errors.ErrPoolClosed
		}

		if slot := p.takeIdleLocked(accountID, key); slot != nil {
			p.mu.Unlock()
			if p.probe(slot) {
				span.SetTag("reused", true)
				return slot, nil
			}
			p.log.Warnf("[%s] pooled session %s failed liveness probe, discarding", accountID, slot.ID)
			p.discard(slot)
			continue
		}

		var victim *PooledSession
		if len(p.accounts[accountID]) >= p.cfg.MaxPerAccount {
			victim = lruIdle(p.accounts[accountID])
			if victim == nil {
				p.mu.Unlock()
				p.metrics.exhausted.Inc()
				return nil, errors.Wrapf(mailsync_errors.ErrPoolExhausted, "account %s has %d sessions in use", accountID, p.cfg.MaxPerAccount)
			}
			p.removeLocked(victim)
			if victim.state == stateProbing {
				// the sweep logs it out once its probe returns
				p.metrics.evictions.WithLabelValues("capacity").Inc()
				victim = nil
			}
		}

		slot := &PooledSession{
			ID:            uuid.New().String(),
			AccountID:     accountID,
			credentialKey: key,
			createdAt:     p.now(),
			lastUsedAt:    p.now(),
			state:         stateConnecting,
			folderLock:    make(chan struct{}, 1),
		}
		p.accounts[accountID] = append(p.accounts[accountID], slot)
		p.updateGaugesLocked(accountID)
		p.mu.Unlock()

		if victim != nil {
			p.metrics.evictions.WithLabelValues("capacity").Inc()
			p.logout(victim)
		}

		session, err := p.connect(ctx, accountID, creds)

		p.mu.Lock()
		if err != nil {
			p.removeLocked(slot)
			p.mu.Unlock()
			tracing.TraceErr(span, err)
			return nil, err
		}
		if p.closed {
			p.removeLocked(slot)
			p.mu.Unlock()
			p.logoutSession(accountID, session)
			return nil, mailsync_errors.ErrPoolClosed
		}
		slot.Session = session
		slot.state = stateInUse
		slot.healthy = true
		slot.lastUsedAt = p.now()
		p.updateGaugesLocked(accountID)
		p.mu.Unlock()

		p.log.Debugf("[%s] opened pooled session %s", accountID, slot.ID)
		return slot, nil
	}
}

// Release returns the session to the idle set. It never closes the connection.
func (p *Pool) Release(slot *PooledSession) {
	if slot == nil {
		return
	}

	p.mu.Lock()
	if p.closed || !p.containsLocked(slot) {
		p.mu.Unlock()
		if slot.Session != nil && p.closed {
			p.logoutSession(slot.AccountID, slot.Session)
		}
		return
	}
	slot.state = stateIdle
	slot.lastUsedAt = p.now()
	p.updateGaugesLocked(slot.AccountID)
	p.mu.Unlock()
}

// Sweep probes every idle session and evicts expired or dead ones.
func (p *Pool) Sweep(ctx context.Context) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Pool.Sweep")
	defer span.Finish()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var candidates []*PooledSession
	for _, slots := range p.accounts {
		for _, slot := range slots {
			if slot.state == stateIdle {
				slot.state = stateProbing
				candidates = append(candidates, slot)
			}
		}
	}
	p.mu.Unlock()

	evicted := 0
	for _, slot := range candidates {
		expired := p.now().Sub(slot.lastUsedAt) >= p.cfg.TTL
		if !expired && p.probe(slot) {
			p.mu.Lock()
			kept := p.containsLocked(slot)
			if kept {
				slot.state = stateIdle
				p.updateGaugesLocked(slot.AccountID)
			}
			p.mu.Unlock()
			if !kept {
				// evicted for capacity while probing
				p.logout(slot)
			}
			continue
		}

		reason := "unhealthy"
		if expired {
			reason = "expired"
		}
		p.metrics.evictions.WithLabelValues(reason).Inc()
		p.discard(slot)
		evicted++
	}

	span.SetTag("probed", len(candidates))
	span.SetTag("evicted", evicted)
	if evicted > 0 {
		p.log.Infof("pool sweep evicted %d of %d idle sessions", evicted, len(candidates))
	}
}

// CloseAll logs out every session; later Acquire calls fail with ErrPoolClosed.
func (p *Pool) CloseAll() {
	p.stopOnce.Do(func() {
		close(p.stopSweep)
	})

	p.mu.Lock()
	p.closed = true
	var all []*PooledSession
	for accountID, slots := range p.accounts {
		all = append(all, slots...)
		delete(p.accounts, accountID)
		p.updateGaugesLocked(accountID)
	}
	p.mu.Unlock()

	for _, slot := range all {
		p.logout(slot)
	}
	p.log.Infof("connection pool closed, %d sessions logged out", len(all))
}

func (p *Pool) Stats() interfaces.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := interfaces.PoolStats{
		Accounts: make(map[string]interfaces.PoolAccountStats, len(p.accounts)),
		Closed:   p.closed,
	}
	for accountID, slots := range p.accounts {
		stats.Accounts[accountID] = countStates(slots)
	}
	return stats
}

func (p *Pool) connect(ctx context.Context, accountID string, creds Credentials) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.ConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := p.dialer.Dial(ctx, creds)
		if err == nil {
			p.metrics.dials.WithLabelValues("success").Inc()
			return session, nil
		}
		lastErr = err
		p.metrics.dials.WithLabelValues("error").Inc()
		p.log.Warnf("[%s] connection attempt %d/%d failed: %v", accountID, attempt, p.cfg.ConnectAttempts, err)

		if attempt < p.cfg.ConnectAttempts {
			backoff := time.Duration(attempt*attempt) * p.cfg.BackoffUnit
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to connect after %d attempts", p.cfg.ConnectAttempts)
}

func (p *Pool) probe(slot *PooledSession) bool {
	err := withTimeout(slot.Session, p.cfg.ProbeTimeout, slot.Session.Noop)
	if err != nil {
		p.mu.Lock()
		slot.healthy = false
		p.mu.Unlock()
		return false
	}
	return true
}

// takeIdleLocked picks the most recently used reusable slot and marks it in use.
func (p *Pool) takeIdleLocked(accountID, key string) *PooledSession {
	var best *PooledSession
	now := p.now()
	for _, slot := range p.accounts[accountID] {
		if slot.state != stateIdle || !slot.healthy || slot.credentialKey != key {
			continue
		}
		if now.Sub(slot.lastUsedAt) >= p.cfg.TTL {
			continue
		}
		if best == nil || slot.lastUsedAt.After(best.lastUsedAt) {
			best = slot
		}
	}
	if best != nil {
		best.state = stateInUse
		p.updateGaugesLocked(accountID)
	}
	return best
}

// lruIdle prefers idle slots and falls back to ones the sweep is probing.
func lruIdle(slots []*PooledSession) *PooledSession {
	var oldest, probing *PooledSession
	for _, slot := range slots {
		switch slot.state {
		case stateIdle:
			if oldest == nil || slot.lastUsedAt.Before(oldest.lastUsedAt) {
				oldest = slot
			}
		case stateProbing:
			if probing == nil || slot.lastUsedAt.Before(probing.lastUsedAt) {
				probing = slot
			}
		}
	}
	if oldest != nil {
		return oldest
	}
	return probing
}

func (p *Pool) discard(slot *PooledSession) {
	p.mu.Lock()
	p.removeLocked(slot)
	p.mu.Unlock()
	p.logout(slot)
}

func (p *Pool) containsLocked(slot *PooledSession) bool {
	for _, s := range p.accounts[slot.AccountID] {
		if s == slot {
			return true
		}
	}
	return false
}

func (p *Pool) removeLocked(slot *PooledSession) {
	slots := p.accounts[slot.AccountID]
	for i, s := range slots {
		if s == slot {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(p.accounts, slot.AccountID)
	} else {
		p.accounts[slot.AccountID] = slots
	}
	p.updateGaugesLocked(slot.AccountID)
}

func (p *Pool) logout(slot *PooledSession) {
	if slot.Session == nil {
		return
	}
	p.logoutSession(slot.AccountID, slot.Session)
}

// logoutSession is best effort and bounded by LogoutTimeout.
func (p *Pool) logoutSession(accountID string, session Session) {
	done := make(chan error, 1)
	go func() {
		done <- withTimeout(session, p.cfg.LogoutTimeout, session.Logout)
	}()

	timeout := p.cfg.LogoutTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case err := <-done:
		if err != nil {
			p.log.Debugf("[%s] logout error: %v", accountID, err)
		}
	case <-time.After(timeout):
		p.log.Warnf("[%s] logout timed out", accountID)
	}
}

func (p *Pool) updateGaugesLocked(accountID string) {
	counts := countStates(p.accounts[accountID])
	p.metrics.sessions.WithLabelValues(accountID, stateConnecting.String()).Set(float64(counts.Connecting))
	p.metrics.sessions.WithLabelValues(accountID, stateIdle.String()).Set(float64(counts.Idle))
	p.metrics.sessions.WithLabelValues(accountID, stateInUse.String()).Set(float64(counts.InUse))
}

func countStates(slots []*PooledSession) interfaces.PoolAccountStats {
	var stats interfaces.PoolAccountStats
	for _, slot := range slots {
		switch slot.state {
		case stateConnecting:
			stats.Connecting++
		case stateIdle, stateProbing:
			stats.Idle++
		case stateInUse:
			stats.InUse++
		}
	}
	return stats
}
