package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

func newTestLock(store record.Store) *RunLock {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRunLock(store, 10*time.Minute, logger)
}

func loadJob(t *testing.T, store record.Store, key string) JobState {
	t.Helper()
	doc, found, err := store.Get(record.KindJob, key)
	require.NoError(t, err)
	require.True(t, found)
	var state JobState
	require.NoError(t, json.Unmarshal(doc, &state))
	return state
}

func TestRunLock_AcquireAndRelease(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	runID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, runID)

	report := &types.SyncReport{RunID: runID, Account: "acct1", NewMessages: 3}
	require.NoError(t, lock.Release(JobNameGetMessages, "acct1", runID, "ok", report))

	state := loadJob(t, store, "getMessages/acct1")
	assert.False(t, state.Running)
	assert.Equal(t, "ok", state.Status)
	require.NotNil(t, state.Report)
	assert.Equal(t, 3, state.Report.NewMessages)

	// Released lock is immediately re-acquirable.
	_, ok, err = lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_LiveRunBlocks(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	_, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)

	runID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, runID)
}

func TestRunLock_MailboxesIndependent(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	_, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(JobNameGetMessages, "acct2")
	require.NoError(t, err)
	assert.True(t, ok, "locks are scoped per mailbox")
}

func TestRunLock_StaleHeartbeatSuperseded(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }

	oldID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed run stops touching its heartbeat; past the stale
	// interval the lock is taken over.
	now = now.Add(11 * time.Minute)
	newID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, oldID, newID)
}

func TestRunLock_TouchKeepsRunAlive(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }

	runID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(9 * time.Minute)
	require.NoError(t, lock.Touch(JobNameGetMessages, "acct1", runID))

	now = now.Add(9 * time.Minute)
	_, ok, err = lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	assert.False(t, ok, "touched heartbeat keeps the run live")
}

func TestRunLock_ReleaseIgnoresSupersededRun(t *testing.T) {
	store := record.NewMemStore()
	lock := newTestLock(store)

	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }

	oldID, _, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	newID, ok, err := lock.Acquire(JobNameGetMessages, "acct1")
	require.NoError(t, err)
	require.True(t, ok)

	// The zombie run finishing must not stomp the new run's state.
	require.NoError(t, lock.Release(JobNameGetMessages, "acct1", oldID, "ok", nil))

	state := loadJob(t, store, "getMessages/acct1")
	assert.True(t, state.Running)
	assert.Equal(t, newID, state.RunID)
}
