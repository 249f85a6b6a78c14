package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

// JobState is the store-backed run-lock and status document for one
// (job name, mailbox) pair.
type JobState struct {
	Name       string            `json:"name"`
	Mailbox    string            `json:"mailbox"`
	RunID      string            `json:"run_id"`
	Running    bool              `json:"running"`
	StartedAt  time.Time         `json:"started_at"`
	Heartbeat  time.Time         `json:"heartbeat"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Status     string            `json:"status,omitempty"`
	Report     *types.SyncReport `json:"report,omitempty"`
}

// RunLock guards one ingestion run per (job name, mailbox). The lock is
// a record-store document, not runner-native locking, so any process
// sharing the store observes it. A held lock whose heartbeat is older
// than the stale interval is treated as dead and may be superseded.
type RunLock struct {
	store  record.Store
	stale  time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewRunLock creates a run lock with the given staleness interval
func NewRunLock(store record.Store, stale time.Duration, logger *logrus.Logger) *RunLock {
	if stale <= 0 {
		stale = 10 * time.Minute
	}
	return &RunLock{store: store, stale: stale, logger: logger, now: time.Now}
}

func jobKey(name, mailbox string) string {
	return name + "/" + mailbox
}

// Acquire attempts to take the lock. It returns the run ID on success
// and ok=false, with no side effects, when a live run already holds it.
func (l *RunLock) Acquire(name, mailbox string) (string, bool, error) {
	key := jobKey(name, mailbox)

	doc, found, err := l.store.Get(record.KindJob, key)
	if err != nil {
		return "", false, err
	}

	if found {
		var state JobState
		if err := json.Unmarshal(doc, &state); err == nil && state.Running {
			if l.now().Sub(state.Heartbeat) < l.stale {
				return "", false, nil
			}
			l.logger.WithFields(logrus.Fields{
				"job":     name,
				"mailbox": mailbox,
				"run_id":  state.RunID,
			}).Warn("Superseding stale run")
		}
	}

	state := JobState{
		Name:      name,
		Mailbox:   mailbox,
		RunID:     uuid.NewString(),
		Running:   true,
		StartedAt: l.now(),
		Heartbeat: l.now(),
	}
	if err := l.put(key, &state); err != nil {
		return "", false, err
	}

	return state.RunID, true, nil
}

// Touch refreshes the heartbeat of a held lock
func (l *RunLock) Touch(name, mailbox, runID string) error {
	key := jobKey(name, mailbox)
	state, err := l.load(key)
	if err != nil || state == nil || state.RunID != runID {
		return err
	}
	state.Heartbeat = l.now()
	return l.put(key, state)
}

// Release finalizes the job document with the run outcome. It is called
// even on failure so the lock is always released.
func (l *RunLock) Release(name, mailbox, runID, status string, report *types.SyncReport) error {
	key := jobKey(name, mailbox)
	state, err := l.load(key)
	if err != nil {
		return err
	}
	if state == nil || state.RunID != runID {
		// Superseded in the meantime; do not stomp the newer run.
		return nil
	}

	state.Running = false
	state.FinishedAt = l.now()
	state.Heartbeat = l.now()
	state.Status = status
	state.Report = report
	return l.put(key, state)
}

func (l *RunLock) load(key string) (*JobState, error) {
	doc, found, err := l.store.Get(record.KindJob, key)
	if err != nil || !found {
		return nil, err
	}
	var state JobState
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, &types.StorageError{Kind: record.KindJob, Key: key, Err: err}
	}
	return &state, nil
}

func (l *RunLock) put(key string, state *JobState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return &types.StorageError{Kind: record.KindJob, Key: key, Err: err}
	}
	return l.store.Put(record.KindJob, key, doc)
}
