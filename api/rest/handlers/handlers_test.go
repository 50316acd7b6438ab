package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/services/scheduler"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Start(ctx context.Context, accountID string, intervalOverride *time.Duration) (bool, error) {
	args := m.Called(ctx, accountID, intervalOverride)
	return args.Bool(0), args.Error(1)
}

func (m *mockScheduler) Stop(accountID string) bool {
	return m.Called(accountID).Bool(0)
}

func (m *mockScheduler) StartAllActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockScheduler) StopAll()       { m.Called() }
func (m *mockScheduler) EnableGlobal()  { m.Called() }
func (m *mockScheduler) DisableGlobal() { m.Called() }

func (m *mockScheduler) SyncNow(ctx context.Context, accountID string) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *mockScheduler) Stats() interfaces.SchedulerStats {
	return m.Called().Get(0).(interfaces.SchedulerStats)
}

func (m *mockScheduler) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) CheckConsistency(ctx context.Context, accountID string) (*interfaces.ConsistencyReport, error) {
	args := m.Called(ctx, accountID)
	report, _ := args.Get(0).(*interfaces.ConsistencyReport)
	return report, args.Error(1)
}

func (m *mockAuditor) FixInconsistencies(ctx context.Context, accountID string) (*interfaces.FixResult, error) {
	args := m.Called(ctx, accountID)
	result, _ := args.Get(0).(*interfaces.FixResult)
	return result, args.Error(1)
}

func (m *mockAuditor) MaintainConsistency(ctx context.Context, accountID string) (*interfaces.MaintenanceResult, error) {
	args := m.Called(ctx, accountID)
	result, _ := args.Get(0).(*interfaces.MaintenanceResult)
	return result, args.Error(1)
}

func (m *mockAuditor) MaintainAll(ctx context.Context) map[string]*interfaces.MaintenanceResult {
	return m.Called(ctx).Get(0).(map[string]*interfaces.MaintenanceResult)
}

type fakeAutoSync struct {
	active     bool
	release    chan struct{}
	restartErr error

	mu       sync.Mutex
	restarts int
}

func (f *fakeAutoSync) IsActive() bool { return f.active }

func (f *fakeAutoSync) Restart(ctx context.Context) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return f.restartErr
}

func (f *fakeAutoSync) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

// silentT lets mock assertions be polled without failing the test.
type silentT struct{}

func (silentT) Logf(string, ...interface{})   {}
func (silentT) Errorf(string, ...interface{}) {}
func (silentT) FailNow()                      {}

type fakePool struct{}

func (fakePool) Stats() interfaces.PoolStats {
	return interfaces.PoolStats{Accounts: map[string]interfaces.PoolAccountStats{"acct_1": {Idle: 1}}}
}

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return log
}

type syncFixture struct {
	scheduler *mockScheduler
	auditor   *mockAuditor
	autoSync  *fakeAutoSync
	monitor   *scheduler.Monitor
	router    *gin.Engine
}

func newSyncFixture() *syncFixture {
	gin.SetMode(gin.TestMode)
	log := testLogger()
	f := &syncFixture{
		scheduler: &mockScheduler{},
		auditor:   &mockAuditor{},
		autoSync:  &fakeAutoSync{active: true},
		monitor:   scheduler.NewMonitor(nil, log),
		router:    gin.New(),
	}
	h := NewSyncHandler(f.scheduler, f.autoSync, f.auditor, f.monitor, log)

	f.router.GET("/status", Status(f.scheduler, fakePool{}, f.autoSync))
	f.router.POST("/sync/enable", h.EnableSync())
	f.router.POST("/sync/disable", h.DisableSync())
	f.router.POST("/sync/restart", h.RestartSync())
	f.router.GET("/sync/report", h.SyncReport())
	f.router.POST("/accounts/:id/sync/start", h.StartAccountSync())
	f.router.POST("/accounts/:id/sync/stop", h.StopAccountSync())
	f.router.POST("/accounts/:id/sync/now", h.SyncAccountNow())
	f.router.GET("/accounts/:id/sync/logs", h.AccountSyncLogs())
	f.router.POST("/accounts/:id/consistency", h.MaintainConsistency())
	return f
}

func (f *syncFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestStatus(t *testing.T) {
	f := newSyncFixture()
	f.scheduler.On("Stats").Return(interfaces.SchedulerStats{Enabled: true, ActiveJobs: 2})

	w := f.do(http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.AutoSync)
	assert.Equal(t, 2, resp.Scheduler.ActiveJobs)
	assert.Equal(t, 1, resp.Pool.Accounts["acct_1"].Idle)
}

func TestGlobalSwitches(t *testing.T) {
	f := newSyncFixture()
	f.scheduler.On("EnableGlobal").Return()
	f.scheduler.On("DisableGlobal").Return()

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/sync/disable", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/sync/enable", "").Code)
	f.scheduler.AssertNumberOfCalls(t, "DisableGlobal", 1)
	f.scheduler.AssertNumberOfCalls(t, "EnableGlobal", 1)
}

func TestRestartSync_AnswersBeforeRestartFinishes(t *testing.T) {
	f := newSyncFixture()
	f.scheduler.On("Stats").Return(interfaces.SchedulerStats{ActiveJobs: 3})
	f.autoSync.release = make(chan struct{})

	w := f.do(http.MethodPost, "/sync/restart", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 0, f.autoSync.restartCount())

	close(f.autoSync.release)
	assert.Eventually(t, func() bool { return f.autoSync.restartCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// a failing restart is only logged
	f.autoSync.restartErr = errors.Wrap(mailsync_errors.ErrSchedulerStopped, "restart")
	w = f.do(http.MethodPost, "/sync/restart", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Eventually(t, func() bool { return f.autoSync.restartCount() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartAccountSync(t *testing.T) {
	f := newSyncFixture()
	interval := 90 * time.Second
	release := make(chan time.Time)
	f.scheduler.On("Start", mock.Anything, "acct_1", &interval).
		WaitUntil(release).
		Return(true, nil).Once()
	f.scheduler.On("Start", mock.Anything, "acct_2", (*time.Duration)(nil)).Return(false, nil).Once()

	// the first tick runs inside Start; the request does not wait for it
	w := f.do(http.MethodPost, "/accounts/acct_1/sync/start", `{"intervalSeconds":90}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp SyncJobResponse
	decode(t, w, &resp)
	assert.Equal(t, "acct_1", resp.AccountID)
	assert.True(t, resp.Accepted)
	close(release)

	w = f.do(http.MethodPost, "/accounts/acct_2/sync/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(http.MethodPost, "/accounts/acct_3/sync/start", `{"intervalSeconds":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/accounts/acct_3/sync/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Eventually(t, func() bool {
		return f.scheduler.AssertExpectations(silentT{})
	}, 2*time.Second, 10*time.Millisecond)
	f.scheduler.AssertExpectations(t)
}

func TestStopAccountSync(t *testing.T) {
	f := newSyncFixture()
	f.scheduler.On("Stop", "acct_1").Return(true)
	f.scheduler.On("Stop", "acct_2").Return(false)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/accounts/acct_1/sync/stop", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/accounts/acct_2/sync/stop", "").Code)
}

func TestSyncAccountNow(t *testing.T) {
	f := newSyncFixture()
	f.scheduler.On("SyncNow", mock.Anything, "acct_1").Return(true, nil)
	f.scheduler.On("SyncNow", mock.Anything, "acct_2").Return(false, errors.Wrapf(mailsync_errors.ErrSyncJobNotFound, "[%s]", "acct_2"))
	f.scheduler.On("SyncNow", mock.Anything, "acct_3").Return(true, errors.Wrap(mailsync_errors.ErrPoolExhausted, "acquire"))
	f.scheduler.On("SyncNow", mock.Anything, "acct_4").Return(true, errors.New("login failed"))

	w := f.do(http.MethodPost, "/accounts/acct_1/sync/now", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp SyncJobResponse
	decode(t, w, &resp)
	assert.True(t, resp.Ran)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/accounts/acct_2/sync/now", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/accounts/acct_3/sync/now", "").Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/accounts/acct_4/sync/now", "").Code)
}

func TestMaintainConsistency(t *testing.T) {
	f := newSyncFixture()
	f.auditor.On("MaintainConsistency", mock.Anything, "acct_1").Return(&interfaces.MaintenanceResult{
		Success: true,
		Report:  &interfaces.ConsistencyReport{AccountID: "acct_1"},
		Fixes:   &interfaces.FixResult{FoldersFixed: 1, OrphansRemoved: 2},
	}, nil)
	f.auditor.On("MaintainConsistency", mock.Anything, "acct_2").Return(nil, errors.Wrap(mailsync_errors.ErrInvalidAccountConfig, "missing host"))

	w := f.do(http.MethodPost, "/accounts/acct_1/consistency", "")
	require.Equal(t, http.StatusOK, w.Code)
	var result interfaces.MaintenanceResult
	decode(t, w, &result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Fixes.FoldersFixed)
	assert.Equal(t, int64(2), result.Fixes.OrphansRemoved)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/accounts/acct_2/consistency", "").Code)
}

func TestAccountSyncLogs(t *testing.T) {
	f := newSyncFixture()
	for i := 0; i < 3; i++ {
		f.monitor.LogStart("acct_1")
		f.monitor.LogSuccess("acct_1", time.Second, 4)
	}

	w := f.do(http.MethodGet, "/accounts/acct_1/sync/logs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp SyncLogsResponse
	decode(t, w, &resp)
	assert.Equal(t, "acct_1", resp.AccountID)
	assert.Len(t, resp.Logs, 2)
	require.NotNil(t, resp.Metrics)
	assert.Equal(t, int64(3), resp.Metrics.SuccessfulSyncs)
	assert.Equal(t, int64(12), resp.Metrics.MessagesProcessed)

	w = f.do(http.MethodGet, "/accounts/unknown/sync/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Logs)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/accounts/acct_1/sync/logs?limit=abc", "").Code)
}

func TestSyncReport(t *testing.T) {
	f := newSyncFixture()
	f.monitor.LogStart("acct_1")
	f.monitor.LogSuccess("acct_1", time.Second, 1)
	f.monitor.LogStart("acct_2")
	f.monitor.LogError("acct_2", errors.New("timeout"), time.Second)

	w := f.do(http.MethodGet, "/sync/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report scheduler.Report
	decode(t, w, &report)
	assert.Equal(t, 2, report.Summary.Accounts)
	assert.Len(t, report.Accounts, 2)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.Wrap(mailsync_errors.ErrAccountNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(mailsync_errors.ErrFolderNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(mailsync_errors.ErrMalformedMessage, "x"), http.StatusUnprocessableEntity},
		{errors.Wrap(mailsync_errors.ErrFolderLockTimeout, "x"), http.StatusServiceUnavailable},
		{errors.Wrap(mailsync_errors.ErrPoolClosed, "x"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, statusForError(tc.err), tc.err.Error())
	}
}
