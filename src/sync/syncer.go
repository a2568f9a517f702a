package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/listener"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"go.uber.org/atomic"
	"golang.org/x/exp/slices"
)

// Scheduler side of the task queue
type JobScheduler interface {
	Init(handlers map[string]queue.Handler) error
	AddJob(ctx context.Context, queueName string, data any) (*model.Job, error)
	GetJobsByState(ctx context.Context, state model.JobState, queueNames []string) (map[string][]*model.Job, error)
}

// Narrow chain provider facade
type ChainReader interface {
	GetBlock(ctx context.Context, offset int64) (*eth.BlockPtr, error)
	GetNetwork(ctx context.Context) (*eth.NetworkInfo, error)
}

// Models already enrolled in the index, consumed once at init
type IndexedModelSource interface {
	IndexedModels(ctx context.Context) ([]string, error)
}

// Workers bound to the three queues
type Workers interface {
	SyncHistory(ctx context.Context, run *queue.JobRun) error
	SyncContinuous(ctx context.Context, run *queue.JobRun) error
	RebuildAnchors(ctx context.Context, run *queue.JobRun) error
}

// Keeps the anchor index in step with the chain. Owns the set of models
// under sync and the per model count of outstanding backfill jobs, schedules
// catch up work at boot and per block event afterwards, persists progress
// after every event and answers readiness and status queries.
type Syncer struct {
	*task.Task

	queue       JobScheduler
	chain       ChainReader
	modelSource IndexedModelSource
	workers     Workers
	progress    ProgressStorage
	monitor     monitoring.Monitor

	input   chan *listener.BlockEvent
	publish chan *BlockEventMessage

	// Guards the model set and the historic counters, both are read from
	// gateway and status goroutines
	mtx      sync.RWMutex
	models   map[string]struct{}
	historic map[string]int

	currentBlock atomic.Int64
	startBlock   atomic.Int64
	network      atomic.String
}

func NewSyncer(config *config.Config) (self *Syncer) {
	self = new(Syncer)

	self.models = make(map[string]struct{})
	self.historic = make(map[string]int)

	self.Task = task.NewTask(config, "syncer").
		WithOnBeforeStart(self.init).
		WithSubtaskFunc(self.run).
		WithPeriodicSubtaskFunc(config.Syncer.StatusInterval, self.logStatus).
		WithOnAfterStop(func() {
			if self.publish != nil {
				close(self.publish)
			}
		})

	return
}

func (self *Syncer) WithQueue(v JobScheduler) *Syncer {
	self.queue = v
	return self
}

func (self *Syncer) WithChain(v ChainReader) *Syncer {
	self.chain = v
	return self
}

func (self *Syncer) WithModelSource(v IndexedModelSource) *Syncer {
	self.modelSource = v
	return self
}

func (self *Syncer) WithWorkers(v Workers) *Syncer {
	self.workers = v
	return self
}

func (self *Syncer) WithProgressStorage(v ProgressStorage) *Syncer {
	self.progress = v
	return self
}

func (self *Syncer) WithMonitor(v monitoring.Monitor) *Syncer {
	self.monitor = v
	return self
}

func (self *Syncer) WithInputChannel(v chan *listener.BlockEvent) *Syncer {
	self.input = v
	return self
}

// Handled events get mirrored onto this channel for the Redis publisher.
// The syncer closes it once event handling is over.
func (self *Syncer) WithPublishChannel(v chan *BlockEventMessage) *Syncer {
	self.publish = v
	return self
}

func (self *Syncer) init() (err error) {
	ctx := self.Ctx

	progress, err := self.progress.Load(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to load sync progress")
		return
	}

	// Enroll every model the index already tracks
	indexed, err := self.modelSource.IndexedModels(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to list indexed models")
		return
	}
	self.mtx.Lock()
	for _, id := range indexed {
		self.models[id] = struct{}{}
	}
	count := len(self.models)
	self.mtx.Unlock()
	self.monitor.GetReport().Syncer.State.ModelsSyncing.Store(int64(count))

	err = self.queue.Init(map[string]queue.Handler{
		QueueHistorySync:    self.workers.SyncHistory,
		QueueContinuousSync: self.workers.SyncContinuous,
		QueueRebuildAnchors: self.workers.RebuildAnchors,
	})
	if err != nil {
		return
	}

	err = self.restoreHistoricCounters(ctx)
	if err != nil {
		return
	}

	// The reference point for catch up is the safe tip, not the raw head,
	// so shallow reorgs don't invalidate already scheduled work.
	// Sync can't safely begin without it.
	safeTip, err := self.chain.GetBlock(ctx, -1*self.Config.Syncer.BlockConfirmations)
	if err != nil {
		self.Log.WithError(err).Error("Failed to get the safe tip block")
		self.monitor.GetReport().Syncer.Errors.ChainInfoFetchFailures.Inc()
		return
	}

	network, err := self.chain.GetNetwork(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to get the network info")
		self.monitor.GetReport().Syncer.Errors.ChainInfoFetchFailures.Inc()
		return
	}
	self.network.Store(fmt.Sprintf("eip155:%d", network.ChainId))

	self.startBlock.Store(safeTip.Number)
	self.currentBlock.Store(safeTip.Number)
	self.monitor.GetReport().Syncer.State.StartBlock.Store(safeTip.Number)
	self.monitor.GetReport().Syncer.State.CurrentBlock.Store(safeTip.Number)

	switch {
	case !progress.Synced:
		self.Log.WithField("to", safeTip.Number).Info("No prior progress, backfilling from genesis")
		err = self.addSyncJob(ctx, QueueHistorySync, &JobRequest{
			JobType:   JobKindCatchup,
			FromBlock: 0,
			ToBlock:   safeTip.Number,
			Models:    self.SyncedModels(),
		})

	case progress.BlockNumber < safeTip.Number:
		self.Log.WithField("from", progress.BlockNumber).WithField("to", safeTip.Number).Info("Catching up to the safe tip")
		err = self.addSyncJob(ctx, QueueHistorySync, &JobRequest{
			JobType:   JobKindCatchup,
			FromBlock: progress.BlockNumber,
			ToBlock:   safeTip.Number,
			Models:    self.SyncedModels(),
		})

	default:
		// Already at the safe tip
	}
	if err != nil {
		self.Log.WithError(err).Error("Failed to enqueue the catch up job")
		return
	}

	// The block listener resumes from the persisted progress, move it to
	// the safe tip before the listener starts
	err = self.progress.Save(ctx, &Progress{BlockHash: safeTip.Hash, BlockNumber: safeTip.Number, Synced: true})
	if err != nil {
		self.Log.WithError(err).Error("Failed to persist sync progress")
		return
	}

	self.Log.WithField("number", safeTip.Number).
		WithField("hash", safeTip.Hash).
		WithField("network", self.network.Load()).
		WithField("models", count).
		Info("Sync initialized")
	return nil
}

// History jobs that survived a restart still gate readiness. Counters only
// live in memory, so they get rebuilt from the persisted queue before any
// new work is scheduled and before queries can observe a model as synced.
func (self *Syncer) restoreHistoricCounters(ctx context.Context) (err error) {
	restored := 0
	for _, state := range []model.JobState{model.JobStateCreated, model.JobStateActive} {
		var jobs map[string][]*model.Job
		jobs, err = self.queue.GetJobsByState(ctx, state, []string{QueueHistorySync})
		if err != nil {
			self.Log.WithError(err).WithField("state", state).Error("Failed to load unfinished history jobs")
			return
		}

		for _, job := range jobs[QueueHistorySync] {
			request, parseErr := ParseJobRequest(job)
			if parseErr != nil {
				self.Log.WithError(parseErr).WithField("id", job.Id).Error("Failed to parse unfinished job request")
				continue
			}
			self.incrementHistoric(request.Models)
			restored++
		}
	}

	if restored > 0 {
		self.Log.WithField("jobs", restored).Info("Restored historic sync counters from unfinished jobs")
	}
	return nil
}

// Consumes block events one at a time, in the order they were emitted.
// Handling only derives a job request and persists progress, the sync work
// itself runs on the queue's workers.
func (self *Syncer) run() error {
	for event := range self.input {
		self.handleBlockEvent(event)
	}
	return nil
}

func (self *Syncer) handleBlockEvent(event *listener.BlockEvent) {
	var err error
	if event.Reorganized {
		from := event.Number - self.Config.Syncer.BlockConfirmations
		if from < 0 {
			from = 0
		}

		self.Log.WithField("number", event.Number).
			WithField("from", from).
			WithField("expected_parent", event.ExpectedParentHash).
			Warn("Reorganization, scheduling recovery sync")

		err = self.addSyncJob(self.Ctx, QueueHistorySync, &JobRequest{
			JobType:   JobKindCatchup,
			FromBlock: from,
			ToBlock:   event.Number,
			Models:    self.SyncedModels(),
		})
		self.monitor.GetReport().Syncer.State.ReorgsProcessed.Inc()
	} else {
		err = self.addSyncJob(self.Ctx, QueueContinuousSync, &JobRequest{
			JobType:   JobKindContinuous,
			FromBlock: event.Number,
			ToBlock:   event.Number,
			Models:    self.SyncedModels(),
		})
	}
	if err != nil && !self.stopping(err) {
		// The missed range gets recovered by the next catch up or reorg sync
		self.Log.WithError(err).WithField("number", event.Number).Error("Failed to schedule sync job")
		self.monitor.GetReport().Syncer.Errors.ScheduleFailures.Inc()
	}

	// Progress moves forward regardless of scheduling errors, a missed job
	// is recoverable, a missed progress update risks repeating ranges
	err = self.progress.Save(self.Ctx, &Progress{BlockHash: event.Hash, BlockNumber: event.Number, Synced: true})
	if err != nil && !self.stopping(err) {
		self.Log.WithError(err).WithField("number", event.Number).Error("Failed to persist sync progress")
		self.monitor.GetReport().Syncer.Errors.ProgressSaveFailures.Inc()
	}

	self.currentBlock.Store(event.Number)
	self.monitor.GetReport().Syncer.State.CurrentBlock.Store(event.Number)
	self.monitor.GetReport().Syncer.State.BlockEventsProcessed.Inc()

	self.publishEvent(event)
}

func (self *Syncer) publishEvent(event *listener.BlockEvent) {
	if self.publish == nil {
		return
	}

	message := &BlockEventMessage{
		Network:     self.network.Load(),
		BlockHash:   event.Hash,
		BlockNumber: event.Number,
		Reorganized: event.Reorganized,
		Timestamp:   event.Timestamp,
	}

	select {
	case self.publish <- message:
	default:
		// Never block event handling on a slow consumer
		self.Log.Warn("Publish channel is full, dropping block event")
		self.monitor.GetReport().Syncer.Errors.PublishChannelOverflows.Inc()
	}
}

// Enrolls models for sync and schedules their backfill over the given
// range. Enrolling an already present model only affects the job.
func (self *Syncer) StartModelSync(ctx context.Context, fromBlock, toBlock int64, models ...string) (err error) {
	if len(models) == 0 {
		return nil
	}

	models = normalizeModels(models)

	self.mtx.Lock()
	for _, id := range models {
		self.models[id] = struct{}{}
	}
	count := len(self.models)
	self.mtx.Unlock()
	self.monitor.GetReport().Syncer.State.ModelsSyncing.Store(int64(count))

	self.Log.WithField("models", models).
		WithField("from", fromBlock).
		WithField("to", toBlock).
		Info("Starting model sync")

	return self.addSyncJob(ctx, QueueHistorySync, &JobRequest{
		JobType:   JobKindCatchup,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Models:    models,
	})
}

// Takes models out of the sync set. Removing an absent model is a no op.
// Jobs already enqueued for the models run to completion, only future
// scheduling is affected.
func (self *Syncer) StopModelSync(models ...string) {
	if len(models) == 0 {
		return
	}

	self.mtx.Lock()
	for _, id := range models {
		delete(self.models, id)
	}
	count := len(self.models)
	self.mtx.Unlock()
	self.monitor.GetReport().Syncer.State.ModelsSyncing.Store(int64(count))

	self.Log.WithField("models", models).Info("Stopped model sync")
}

// True when the model has no outstanding historical sync work.
// The index layer refuses queries against models that aren't complete.
func (self *Syncer) SyncComplete(modelId string) bool {
	self.mtx.RLock()
	defer self.mtx.RUnlock()
	return self.historic[modelId] == 0
}

// Snapshot of the enrolled model ids, sorted
func (self *Syncer) SyncedModels() (out []string) {
	self.mtx.RLock()
	out = make([]string, 0, len(self.models))
	for id := range self.models {
		out = append(out, id)
	}
	self.mtx.RUnlock()

	slices.Sort(out)
	return
}

// The single place where historic sync counters get incremented. The
// queue's terminal callback is the only place they go down again.
func (self *Syncer) addSyncJob(ctx context.Context, queueName string, request *JobRequest) (err error) {
	isHistory := queueName == QueueHistorySync
	if isHistory {
		self.incrementHistoric(request.Models)
	}

	_, err = self.queue.AddJob(ctx, queueName, request)
	if err != nil {
		if isHistory {
			// The job never made it into the queue
			self.decrementHistoric(request.Models)
		}
		return
	}

	return nil
}

// Terminal job callback registered on the queue. Historic counters go down
// even for failed jobs, otherwise one bad range would gate queries forever.
func (self *Syncer) OnJobDone(queueName string, job *model.Job, jobErr error) {
	if jobErr != nil {
		switch queueName {
		case QueueHistorySync:
			self.monitor.GetReport().Syncer.Errors.HistorySyncFailures.Inc()
		case QueueContinuousSync:
			self.monitor.GetReport().Syncer.Errors.ContinuousSyncFailures.Inc()
		case QueueRebuildAnchors:
			self.monitor.GetReport().Syncer.Errors.RebuildFailures.Inc()
		}
	}

	if queueName != QueueHistorySync {
		return
	}

	request, err := ParseJobRequest(job)
	if err != nil {
		self.Log.WithError(err).WithField("id", job.Id).Error("Failed to parse finished job request")
		return
	}

	if jobErr != nil {
		self.Log.WithError(jobErr).
			WithField("id", job.Id).
			WithField("models", request.Models).
			WithField("from", request.FromBlock).
			WithField("to", request.ToBlock).
			Error("Historical sync failed terminally, models may be incompletely synced")
	}

	self.decrementHistoric(request.Models)
}

func (self *Syncer) incrementHistoric(models []string) {
	self.mtx.Lock()
	for _, id := range models {
		self.historic[id]++
	}
	self.mtx.Unlock()

	self.updateHistoricGauge()
}

// Floored at zero, an entry at zero disappears from the map
func (self *Syncer) decrementHistoric(models []string) {
	self.mtx.Lock()
	for _, id := range models {
		if self.historic[id] <= 1 {
			delete(self.historic, id)
		} else {
			self.historic[id]--
		}
	}
	self.mtx.Unlock()

	self.updateHistoricGauge()
}

func (self *Syncer) updateHistoricGauge() {
	self.mtx.RLock()
	total := 0
	for _, count := range self.historic {
		total += count
	}
	self.mtx.RUnlock()

	self.monitor.GetReport().Syncer.State.PendingHistorySyncs.Store(int64(total))
}

func (self *Syncer) stopping(err error) bool {
	return errors.Is(err, context.Canceled) && self.IsStopping.Load()
}

// Sorted and without duplicates
func normalizeModels(models []string) []string {
	out := slices.Clone(models)
	slices.Sort(out)
	return slices.Compact(out)
}
