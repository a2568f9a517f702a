package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"github.com/cenkalti/backoff"
	"github.com/rs/xid"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// Handler processes one claimed job. A nil result marks the job completed,
// an error schedules a retry until the retry budget runs out.
type Handler func(ctx context.Context, run *JobRun) error

// Persistent job scheduler over the jobs table. Jobs survive restarts and
// execution is at least once, so handlers must tolerate reruns over already
// applied work.
type TaskQueue struct {
	*task.Task

	db      *gorm.DB
	monitor monitoring.Monitor

	handlers   map[string]Handler
	queueNames []string

	onJobDone []func(queueName string, job *model.Job, jobErr error)

	wake chan string
}

func NewTaskQueue(config *config.Config) (self *TaskQueue) {
	self = new(TaskQueue)

	self.Task = task.NewTask(config, "task-queue").
		WithOnBeforeStart(self.recover).
		WithSubtaskFunc(self.run).
		WithCronSubtaskFunc(config.Queue.JanitorSchedule, self.cleanup).
		WithWorkerPool(config.Queue.MaxWorkers, config.Queue.MaxQueueSize)

	return
}

func (self *TaskQueue) WithDB(db *gorm.DB) *TaskQueue {
	self.db = db
	return self
}

func (self *TaskQueue) WithMonitor(monitor monitoring.Monitor) *TaskQueue {
	self.monitor = monitor
	return self
}

// Queue names arriving on this channel wake the dispatcher between its
// polling rounds. Usually fed by the Streamer.
func (self *TaskQueue) WithWakeChannel(wake chan string) *TaskQueue {
	self.wake = wake
	return self
}

// Called after a job reaches a terminal state, completed or failed
func (self *TaskQueue) WithOnJobDone(f func(queueName string, job *model.Job, jobErr error)) *TaskQueue {
	self.onJobDone = append(self.onJobDone, f)
	return self
}

// Registers exactly one handler per queue name. Called once, before the
// dispatcher claims anything.
func (self *TaskQueue) Init(handlers map[string]Handler) (err error) {
	if self.handlers != nil {
		return errors.New("task queue is already initialized")
	}
	if len(handlers) == 0 {
		return errors.New("no handlers to register")
	}

	self.handlers = handlers
	self.queueNames = make([]string, 0, len(handlers))
	for name := range handlers {
		self.queueNames = append(self.queueNames, name)
	}

	// Claim in a deterministic order across queues
	slices.Sort(self.queueNames)

	return nil
}

// Inserts a created job row. Used by AddJob and by one shot commands that
// enqueue without a running queue.
func Enqueue(ctx context.Context, db *gorm.DB, queueName string, data any) (job *model.Job, err error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return
	}

	job = &model.Job{
		Id:        xid.New().String(),
		Queue:     queueName,
		State:     model.JobStateCreated,
		CreatedOn: time.Now(),
	}
	err = job.Data.Set(buf)
	if err != nil {
		return
	}

	err = db.WithContext(ctx).Create(job).Error
	return
}

// Inserts a created job and returns without waiting for execution.
// The insert trigger notifies the dispatcher through Postgres.
func (self *TaskQueue) AddJob(ctx context.Context, queueName string, data any) (job *model.Job, err error) {
	if !slices.Contains(self.queueNames, queueName) {
		err = fmt.Errorf("no handler registered for queue %s", queueName)
		return
	}

	job, err = Enqueue(ctx, self.db, queueName, data)
	if err != nil {
		return
	}

	self.monitor.GetReport().Queue.State.JobsAdded.Inc()

	self.Log.WithField("id", job.Id).WithField("queue", queueName).Debug("Job added")
	return
}

// Snapshot of jobs in the given state, grouped by queue name.
// Meant for status reporting, the data is stale the moment it's returned.
func (self *TaskQueue) GetJobsByState(ctx context.Context, state model.JobState, queueNames []string) (out map[string][]*model.Job, err error) {
	var jobs []*model.Job
	err = self.db.WithContext(ctx).
		Where("state = ?", state).
		Where("queue IN ?", queueNames).
		Order("created_on ASC").
		Find(&jobs).
		Error
	if err != nil {
		return
	}

	out = make(map[string][]*model.Job, len(queueNames))
	for _, job := range jobs {
		out[job.Queue] = append(out[job.Queue], job)
	}
	return
}

// Jobs left active by a previous run can't have a live worker anymore,
// put them back in line before dispatching starts
func (self *TaskQueue) recover() (err error) {
	res := self.db.WithContext(self.Ctx).
		Model(&model.Job{}).
		Where("state = ?", model.JobStateActive).
		Updates(map[string]any{
			"state":      model.JobStateCreated,
			"started_on": nil,
		})
	if res.Error != nil {
		self.Log.WithError(res.Error).Error("Failed to recover abandoned jobs")
		return res.Error
	}

	if res.RowsAffected > 0 {
		self.Log.WithField("count", res.RowsAffected).Warn("Recovered jobs abandoned by a previous run")
	}
	return nil
}

func (self *TaskQueue) run() error {
	// Jobs may already be waiting, e.g. inserted before the queue started
	self.dispatch()

	for {
		timer := time.NewTimer(self.Config.Queue.DispatchInterval)

		select {
		case <-self.StopChannel:
			timer.Stop()
			return nil

		case queueName, ok := <-self.wake:
			timer.Stop()
			if !ok {
				// Streamer is gone, polling alone takes over
				self.wake = nil
				continue
			}
			self.Log.WithField("queue", queueName).Debug("Woken up by an insert")
			self.dispatch()

		case <-timer.C:
			self.dispatch()
		}
	}
}

// Claims a batch of due jobs from every registered queue and hands them to
// the workers. Keeps claiming while full batches come back.
func (self *TaskQueue) dispatch() {
	for {
		again := false

		for _, queueName := range self.queueNames {
			if self.IsStopping.Load() {
				return
			}

			claimed := self.claim(queueName)
			for _, job := range claimed {
				job := job
				self.SubmitToWorker(func() {
					self.execute(job)
				})
			}

			// A full batch means more jobs may be waiting
			if len(claimed) == self.Config.Queue.DispatchBatchSize {
				again = true
			}
		}

		if !again {
			return
		}
	}
}

func (self *TaskQueue) claim(queueName string) (jobs []*model.Job) {
	err := self.db.WithContext(self.Ctx).
		Transaction(func(tx *gorm.DB) error {
			return tx.Raw(`UPDATE jobs
				SET state = 'active', started_on = NOW()
				WHERE id IN (
					SELECT id
					FROM jobs
					WHERE queue = ? AND state = 'created' AND (retry_after IS NULL OR retry_after <= NOW())
					ORDER BY created_on ASC, id ASC
					LIMIT ?
					FOR UPDATE SKIP LOCKED)
				RETURNING *`, queueName, self.Config.Queue.DispatchBatchSize).
				Scan(&jobs).
				Error
		})
	if err != nil {
		if self.IsStopping.Load() {
			return nil
		}
		self.Log.WithError(err).WithField("queue", queueName).Error("Failed to claim jobs")
		self.monitor.GetReport().Queue.Errors.DbClaimFailures.Inc()
		return nil
	}

	if len(jobs) > 0 {
		self.Log.WithField("queue", queueName).WithField("count", len(jobs)).Debug("Claimed jobs")
	}
	return
}

func (self *TaskQueue) execute(job *model.Job) {
	self.monitor.GetReport().Queue.State.JobsActive.Inc()
	defer self.monitor.GetReport().Queue.State.JobsActive.Dec()

	self.Log.WithField("id", job.Id).WithField("queue", job.Queue).Debug("Job started")

	run := &JobRun{Job: job, db: self.db}

	err := self.handlers[job.Queue](self.Ctx, run)
	if err != nil {
		self.Log.WithError(err).WithField("id", job.Id).WithField("queue", job.Queue).Error("Job handler failed")
		self.fail(job, err)
		return
	}

	self.complete(job)
}

func (self *TaskQueue) complete(job *model.Job) {
	now := time.Now()
	err := self.db.WithContext(self.Ctx).
		Model(&model.Job{}).
		Where("id = ?", job.Id).
		Updates(map[string]any{
			"state":        model.JobStateCompleted,
			"completed_on": now,
		}).
		Error
	if err != nil {
		// The work itself is done, a rerun after janitor recovery is harmless
		self.Log.WithError(err).WithField("id", job.Id).Error("Failed to mark job completed")
		self.monitor.GetReport().Queue.Errors.DbUpdateFailures.Inc()
	}

	job.State = model.JobStateCompleted
	job.CompletedOn = sql.NullTime{Time: now, Valid: true}

	self.monitor.GetReport().Queue.State.JobsCompleted.Inc()
	self.Log.WithField("id", job.Id).WithField("queue", job.Queue).Debug("Job completed")

	self.jobDone(job, nil)
}

func (self *TaskQueue) fail(job *model.Job, jobErr error) {
	if job.RetryCount >= self.Config.Queue.MaxRetries {
		now := time.Now()
		err := self.db.WithContext(self.Ctx).
			Model(&model.Job{}).
			Where("id = ?", job.Id).
			Updates(map[string]any{
				"state":        model.JobStateFailed,
				"completed_on": now,
				"last_error":   jobErr.Error(),
			}).
			Error
		if err != nil {
			self.Log.WithError(err).WithField("id", job.Id).Error("Failed to mark job failed")
			self.monitor.GetReport().Queue.Errors.DbUpdateFailures.Inc()
		}

		job.State = model.JobStateFailed
		job.CompletedOn = sql.NullTime{Time: now, Valid: true}

		self.monitor.GetReport().Queue.State.JobsFailed.Inc()
		self.Log.WithField("id", job.Id).WithField("queue", job.Queue).Error("Job failed, no retries left")

		self.jobDone(job, jobErr)
		return
	}

	delay := self.retryDelay(job.RetryCount)
	err := self.db.WithContext(self.Ctx).
		Model(&model.Job{}).
		Where("id = ?", job.Id).
		Updates(map[string]any{
			"state":       model.JobStateCreated,
			"retry_count": gorm.Expr("retry_count + 1"),
			"retry_after": time.Now().Add(delay),
			"last_error":  jobErr.Error(),
			"started_on":  nil,
		}).
		Error
	if err != nil {
		self.Log.WithError(err).WithField("id", job.Id).Error("Failed to schedule job retry")
		self.monitor.GetReport().Queue.Errors.DbUpdateFailures.Inc()
		return
	}

	self.monitor.GetReport().Queue.State.JobsRetried.Inc()
	self.Log.WithField("id", job.Id).
		WithField("queue", job.Queue).
		WithField("retry_count", job.RetryCount+1).
		WithField("delay", delay).
		Info("Job scheduled for retry")
}

// Delay before the next run, 15s 30s 60s... capped at the configured max
func (self *TaskQueue) retryDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = self.Config.Queue.RetryBackoffInterval
	b.MaxInterval = self.Config.Queue.RetryMaxBackoffInterval
	b.MaxElapsedTime = 0
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (self *TaskQueue) jobDone(job *model.Job, jobErr error) {
	for _, f := range self.onJobDone {
		f(job.Queue, job, jobErr)
	}
}

// Deletes terminal jobs past the retention period and requeues active jobs
// whose worker never reported back
func (self *TaskQueue) cleanup() (err error) {
	res := self.db.WithContext(self.Ctx).
		Where("state IN ?", []model.JobState{model.JobStateCompleted, model.JobStateFailed}).
		Where("completed_on < ?", time.Now().Add(-self.Config.Queue.ArchiveAfter)).
		Delete(&model.Job{})
	if res.Error != nil {
		self.Log.WithError(res.Error).Error("Failed to archive finished jobs")
		self.monitor.GetReport().Queue.Errors.DbUpdateFailures.Inc()
	} else if res.RowsAffected > 0 {
		self.monitor.GetReport().Queue.State.JobsArchived.Add(uint64(res.RowsAffected))
		self.Log.WithField("count", res.RowsAffected).Info("Archived finished jobs")
	}

	res = self.db.WithContext(self.Ctx).
		Model(&model.Job{}).
		Where("state = ?", model.JobStateActive).
		Where("started_on < ?", time.Now().Add(-self.Config.Queue.StalledAfter)).
		Updates(map[string]any{
			"state":      model.JobStateCreated,
			"started_on": nil,
		})
	if res.Error != nil {
		self.Log.WithError(res.Error).Error("Failed to requeue stalled jobs")
		self.monitor.GetReport().Queue.Errors.DbUpdateFailures.Inc()
	} else if res.RowsAffected > 0 {
		self.monitor.GetReport().Queue.State.JobsStalled.Add(uint64(res.RowsAffected))
		self.Log.WithField("count", res.RowsAffected).Warn("Requeued stalled jobs")
	}

	return nil
}
