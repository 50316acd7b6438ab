package autosync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
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

func (m *mockScheduler) StopAll() {
	m.Called()
}

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

type fakeAccounts struct {
	mu          sync.Mutex
	pingErrors  int
	pings       int
	syncable    []*models.MailboxAccount
	alwaysFails bool
}

func (f *fakeAccounts) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.alwaysFails || f.pings <= f.pingErrors {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeAccounts) GetByID(context.Context, string) (*models.MailboxAccount, error) {
	return nil, nil
}

func (f *fakeAccounts) ListSyncable(context.Context) ([]*models.MailboxAccount, error) {
	return f.syncable, nil
}

func (f *fakeAccounts) UpdateLastSync(context.Context, string, time.Time) error {
	return nil
}

func testConfig() Config {
	return Config{StartDelay: time.Millisecond, RetryDelay: time.Millisecond, RestartDelay: time.Millisecond}
}

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return log
}

func oneAccount() []*models.MailboxAccount {
	return []*models.MailboxAccount{{ID: "acct_1", Active: true, SyncEnabled: true}}
}

func TestInitialize_RetriesUntilStoreIsReachable(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("StartAllActive", mock.Anything).Return(1, nil).Once()
	scheduler.On("Stats").Return(interfaces.SchedulerStats{ActiveJobs: 1})
	accounts := &fakeAccounts{pingErrors: 2, syncable: oneAccount()}

	initializer := NewInitializer(testConfig(), scheduler, accounts, testLogger())
	require.NoError(t, initializer.Initialize(context.Background()))

	assert.Equal(t, 3, accounts.pings)
	assert.True(t, initializer.IsActive())
	scheduler.AssertExpectations(t)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("StartAllActive", mock.Anything).Return(1, nil).Once()
	accounts := &fakeAccounts{syncable: oneAccount()}

	initializer := NewInitializer(testConfig(), scheduler, accounts, testLogger())
	require.NoError(t, initializer.Initialize(context.Background()))
	require.NoError(t, initializer.Initialize(context.Background()))

	scheduler.AssertNumberOfCalls(t, "StartAllActive", 1)
}

func TestInitialize_NoAccounts(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("Stats").Return(interfaces.SchedulerStats{})
	accounts := &fakeAccounts{}

	initializer := NewInitializer(testConfig(), scheduler, accounts, testLogger())
	require.NoError(t, initializer.Initialize(context.Background()))

	assert.False(t, initializer.IsActive())
	scheduler.AssertNotCalled(t, "StartAllActive", mock.Anything)
}

func TestInitialize_StopsWhenContextEnds(t *testing.T) {
	scheduler := &mockScheduler{}
	accounts := &fakeAccounts{alwaysFails: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	initializer := NewInitializer(Config{RetryDelay: 5 * time.Millisecond}, scheduler, accounts, testLogger())
	err := initializer.Initialize(ctx)
	require.Error(t, err)
	assert.Greater(t, accounts.pings, 1)
}

func TestStop(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("StartAllActive", mock.Anything).Return(1, nil)
	scheduler.On("StopAll").Return()
	scheduler.On("Shutdown", mock.Anything).Return(nil)
	accounts := &fakeAccounts{syncable: oneAccount()}

	initializer := NewInitializer(testConfig(), scheduler, accounts, testLogger())
	require.NoError(t, initializer.Initialize(context.Background()))
	require.NoError(t, initializer.Stop(context.Background()))

	assert.False(t, initializer.IsActive())
	scheduler.AssertCalled(t, "StopAll")
	scheduler.AssertCalled(t, "Shutdown", mock.Anything)
}

func TestRestart(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("StartAllActive", mock.Anything).Return(1, nil)
	scheduler.On("StopAll").Return()
	scheduler.On("Stats").Return(interfaces.SchedulerStats{ActiveJobs: 1})
	accounts := &fakeAccounts{syncable: oneAccount()}

	initializer := NewInitializer(testConfig(), scheduler, accounts, testLogger())
	require.NoError(t, initializer.Initialize(context.Background()))
	require.NoError(t, initializer.Restart(context.Background()))

	assert.True(t, initializer.IsActive())
	scheduler.AssertNumberOfCalls(t, "StartAllActive", 2)
	scheduler.AssertNumberOfCalls(t, "StopAll", 1)
	scheduler.AssertNotCalled(t, "Shutdown", mock.Anything)
}
