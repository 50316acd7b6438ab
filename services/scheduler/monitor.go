package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
)

const (
	maxLogEntries      = 100
	reportRecentLogs   = 5
	activeAccountsSpan = 5 * time.Minute
)

type LogEntry struct {
	Timestamp     time.Time       `json:"timestamp"`
	AccountID     string          `json:"accountId"`
	Action        enum.SyncAction `json:"action"`
	Message       string          `json:"message"`
	Duration      time.Duration   `json:"duration,omitempty"`
	MessagesCount int             `json:"messagesCount,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type AccountMetrics struct {
	TotalSyncs        int64         `json:"totalSyncs"`
	SuccessfulSyncs   int64         `json:"successfulSyncs"`
	FailedSyncs       int64         `json:"failedSyncs"`
	Skipped           int64         `json:"skipped"`
	AverageSyncTime   time.Duration `json:"averageSyncTime"`
	LastSyncTime      *time.Time    `json:"lastSyncTime,omitempty"`
	MessagesProcessed int64         `json:"messagesProcessed"`
	ErrorsCount       int64         `json:"errorsCount"`

	totalSyncTime time.Duration
}

type GlobalMetrics struct {
	Accounts        int           `json:"accounts"`
	ActiveAccounts  int           `json:"activeAccounts"`
	TotalSyncs      int64         `json:"totalSyncs"`
	SuccessRate     float64       `json:"successRate"`
	AverageSyncTime time.Duration `json:"averageSyncTime"`
}

type AccountReport struct {
	AccountID  string         `json:"accountId"`
	Metrics    AccountMetrics `json:"metrics"`
	RecentLogs []LogEntry     `json:"recentLogs"`
}

type Report struct {
	Summary  GlobalMetrics   `json:"summary"`
	Accounts []AccountReport `json:"accounts"`
}

// logRing keeps the newest entries, overwriting the oldest once full.
type logRing struct {
	entries []LogEntry
	next    int
	full    bool
}

func newLogRing(size int) *logRing {
	return &logRing{entries: make([]LogEntry, size)}
}

func (r *logRing) add(entry LogEntry) {
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// items returns entries oldest first.
func (r *logRing) items() []LogEntry {
	if !r.full {
		return append([]LogEntry(nil), r.entries[:r.next]...)
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

func (r *logRing) reset(entries []LogEntry) {
	r.entries = make([]LogEntry, len(r.entries))
	r.next = 0
	r.full = false
	for _, e := range entries {
		r.add(e)
	}
}

// Monitor records per-account sync history for the status endpoints.
type Monitor struct {
	mu      sync.RWMutex
	logs    map[string]*logRing
	metrics map[string]*AccountMetrics
	prom    *Metrics
	log     logger.Logger
	now     func() time.Time
}

func NewMonitor(prom *Metrics, log logger.Logger) *Monitor {
	return &Monitor{
		logs:    make(map[string]*logRing),
		metrics: make(map[string]*AccountMetrics),
		prom:    prom,
		log:     log,
		now:     time.Now,
	}
}

func (m *Monitor) LogStart(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(accountID, LogEntry{Action: enum.SyncActionStart, Message: "sync started"})
	m.metricsLocked(accountID).TotalSyncs++
}

func (m *Monitor) LogSuccess(accountID string, duration time.Duration, messages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(accountID, LogEntry{
		Action:        enum.SyncActionSuccess,
		Message:       fmt.Sprintf("sync completed: %d messages processed in %s", messages, duration.Round(time.Millisecond)),
		Duration:      duration,
		MessagesCount: messages,
	})

	metrics := m.metricsLocked(accountID)
	metrics.SuccessfulSyncs++
	metrics.MessagesProcessed += int64(messages)
	metrics.totalSyncTime += duration
	metrics.AverageSyncTime = metrics.totalSyncTime / time.Duration(metrics.SuccessfulSyncs)
	now := m.now()
	metrics.LastSyncTime = &now

	m.prom.observeTick(enum.SyncActionSuccess, duration, messages)
}

func (m *Monitor) LogError(accountID string, syncErr error, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(accountID, LogEntry{
		Action:   enum.SyncActionError,
		Message:  fmt.Sprintf("sync failed: %v", syncErr),
		Duration: duration,
		Error:    syncErr.Error(),
	})

	metrics := m.metricsLocked(accountID)
	metrics.FailedSyncs++
	metrics.ErrorsCount++

	m.prom.observeTick(enum.SyncActionError, duration, 0)
}

func (m *Monitor) LogSkip(accountID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(accountID, LogEntry{Action: enum.SyncActionSkip, Message: "sync skipped: " + reason})
	m.metricsLocked(accountID).Skipped++

	m.prom.observeSkip(reason)
}

func (m *Monitor) LogAudit(accountID string, success bool) {
	m.prom.observeAudit(success)
}

func (m *Monitor) addLocked(accountID string, entry LogEntry) {
	entry.AccountID = accountID
	entry.Timestamp = m.now()
	ring, ok := m.logs[accountID]
	if !ok {
		ring = newLogRing(maxLogEntries)
		m.logs[accountID] = ring
	}
	ring.add(entry)
}

func (m *Monitor) metricsLocked(accountID string) *AccountMetrics {
	metrics, ok := m.metrics[accountID]
	if !ok {
		metrics = &AccountMetrics{}
		m.metrics[accountID] = metrics
	}
	return metrics
}

// Logs returns the newest limit entries oldest first; limit <= 0 returns all.
func (m *Monitor) Logs(accountID string, limit int) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ring, ok := m.logs[accountID]
	if !ok {
		return []LogEntry{}
	}
	items := ring.items()
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}

func (m *Monitor) Metrics(accountID string) *AccountMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metrics, ok := m.metrics[accountID]
	if !ok {
		return nil
	}
	cp := *metrics
	return &cp
}

func (m *Monitor) GlobalMetrics() GlobalMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalLocked()
}

func (m *Monitor) globalLocked() GlobalMetrics {
	global := GlobalMetrics{Accounts: len(m.metrics)}
	now := m.now()

	var successful int64
	var averages time.Duration
	for _, metrics := range m.metrics {
		global.TotalSyncs += metrics.TotalSyncs
		successful += metrics.SuccessfulSyncs
		averages += metrics.AverageSyncTime
		if metrics.LastSyncTime != nil && now.Sub(*metrics.LastSyncTime) < activeAccountsSpan {
			global.ActiveAccounts++
		}
	}
	if global.TotalSyncs > 0 {
		global.SuccessRate = float64(successful) / float64(global.TotalSyncs) * 100
	}
	if len(m.metrics) > 0 {
		global.AverageSyncTime = averages / time.Duration(len(m.metrics))
	}
	return global
}

// ClearOldLogs drops log entries older than maxAge; metrics are kept.
func (m *Monitor) ClearOldLogs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, ring := range m.logs {
		items := ring.items()
		kept := items[:0]
		for _, entry := range items {
			if entry.Timestamp.After(cutoff) {
				kept = append(kept, entry)
			}
		}
		removed += len(items) - len(kept)
		ring.reset(kept)
	}
	if m.log != nil && removed > 0 {
		m.log.Infof("sync monitor: removed %d log entries older than %s", removed, maxAge)
	}
	return removed
}

func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{Summary: m.globalLocked(), Accounts: []AccountReport{}}
	for accountID, metrics := range m.metrics {
		var recent []LogEntry
		if ring, ok := m.logs[accountID]; ok {
			recent = ring.items()
			if len(recent) > reportRecentLogs {
				recent = recent[len(recent)-reportRecentLogs:]
			}
		}
		report.Accounts = append(report.Accounts, AccountReport{
			AccountID:  accountID,
			Metrics:    *metrics,
			RecentLogs: recent,
		})
	}
	sort.Slice(report.Accounts, func(i, j int) bool { return report.Accounts[i].AccountID < report.Accounts[j].AccountID })
	return report
}
