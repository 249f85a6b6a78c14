package sync

import (
	"fmt"
	gosync "sync"

	"github.com/sirupsen/logrus"
)

// JobSpec describes one unit of asynchronous work.
type JobSpec struct {
	Name    string            `json:"name"`
	Mailbox string            `json:"mailbox,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// JobRunner enqueues ingestion jobs. The single-flight guarantee per
// (name, mailbox) comes from the store-backed run-lock inside the job,
// not from the runner itself.
type JobRunner interface {
	Enqueue(spec JobSpec) error
}

// Runner is the in-process JobRunner: each job runs on its own
// goroutine against the manager.
type Runner struct {
	manager *Manager
	logger  *logrus.Logger
	wg      gosync.WaitGroup
}

// NewRunner creates a job runner bound to a manager
func NewRunner(manager *Manager, logger *logrus.Logger) *Runner {
	return &Runner{manager: manager, logger: logger}
}

// Enqueue starts a job asynchronously. Unknown job names are rejected.
func (r *Runner) Enqueue(spec JobSpec) error {
	switch spec.Name {
	case JobNameGetMessages:
		if spec.Mailbox == "" {
			return fmt.Errorf("job %s requires a mailbox", spec.Name)
		}
	default:
		return fmt.Errorf("unknown job: %s", spec.Name)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		report, err := r.manager.GetMessages(spec.Mailbox)
		if err != nil {
			r.logger.WithError(err).WithField("mailbox", spec.Mailbox).Error("Sync job failed")
			return
		}
		r.logger.WithFields(logrus.Fields{
			"mailbox":  spec.Mailbox,
			"run_id":   report.RunID,
			"messages": report.NewMessages,
			"errors":   len(report.Errors),
		}).Info("Sync job finished")
	}()

	return nil
}

// Wait blocks until all enqueued jobs have finished
func (r *Runner) Wait() {
	r.wg.Wait()
}
