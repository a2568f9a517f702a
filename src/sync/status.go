package sync

import (
	"context"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
)

// Derives the three part status snapshot fresh from the queue contents.
// Meant for reporting only, never for control decisions.
func (self *Syncer) SyncStatus(ctx context.Context) (out *Status, err error) {
	active, err := self.queue.GetJobsByState(ctx, model.JobStateActive, []string{QueueHistorySync, QueueContinuousSync})
	if err != nil {
		return
	}

	created, err := self.queue.GetJobsByState(ctx, model.JobStateCreated, []string{QueueHistorySync})
	if err != nil {
		return
	}

	out = &Status{
		ActiveSyncs:  make([]ActiveSyncStatus, 0, len(active[QueueHistorySync])),
		PendingSyncs: make([]PendingSyncStatus, 0, len(created[QueueHistorySync])),
	}

	for _, job := range active[QueueHistorySync] {
		request, err := ParseJobRequest(job)
		if err != nil {
			self.Log.WithError(err).WithField("id", job.Id).Error("Failed to parse active job request")
			continue
		}

		// Before the worker saves its first cursor the job is still at its start
		currentBlock := request.FromBlock
		if request.CurrentBlock != nil {
			currentBlock = *request.CurrentBlock
		}

		out.ActiveSyncs = append(out.ActiveSyncs, ActiveSyncStatus{
			Models:       request.Models,
			StartBlock:   request.FromBlock,
			CurrentBlock: currentBlock,
			EndBlock:     request.ToBlock,
			StartedAt:    job.StartedOn.Time,
			CreatedAt:    job.CreatedOn,
		})
	}

	for _, job := range created[QueueHistorySync] {
		request, err := ParseJobRequest(job)
		if err != nil {
			self.Log.WithError(err).WithField("id", job.Id).Error("Failed to parse pending job request")
			continue
		}

		out.PendingSyncs = append(out.PendingSyncs, PendingSyncStatus{
			Models:     request.Models,
			StartBlock: request.FromBlock,
			EndBlock:   request.ToBlock,
			CreatedAt:  job.CreatedOn,
		})
	}

	currentBlock := self.currentBlock.Load()
	out.ContinuousSync = ContinuousSyncStatus{
		StartBlock:    self.startBlock.Load(),
		LatestBlock:   currentBlock,
		Confirmations: self.Config.Syncer.BlockConfirmations,
	}

	populated := false
	if jobs := active[QueueContinuousSync]; len(jobs) > 0 {
		request, err := ParseJobRequest(jobs[0])
		if err != nil {
			self.Log.WithError(err).WithField("id", jobs[0].Id).Error("Failed to parse continuous job request")
		} else {
			out.ContinuousSync.CurrentBlock = request.FromBlock
			out.ContinuousSync.Models = request.Models
			populated = true
		}
	}
	if !populated {
		// Progress tracks the confirmed edge when no tail job is running
		out.ContinuousSync.CurrentBlock = currentBlock - self.Config.Syncer.BlockConfirmations
		out.ContinuousSync.Models = self.SyncedModels()
	}

	return
}

// Periodic status dump. Failures here never affect sync correctness.
func (self *Syncer) logStatus() error {
	ctx, cancel := context.WithTimeout(self.Ctx, 30*time.Second)
	defer cancel()

	status, err := self.SyncStatus(ctx)
	if err != nil {
		if !self.stopping(err) {
			self.Log.WithError(err).Error("Failed to compute sync status")
			self.monitor.GetReport().Syncer.Errors.StatusComputeFailures.Inc()
		}
		return nil
	}

	self.Log.WithField("active_syncs", len(status.ActiveSyncs)).
		WithField("pending_syncs", len(status.PendingSyncs)).
		WithField("models", len(status.ContinuousSync.Models)).
		WithField("latest_block", status.ContinuousSync.LatestBlock).
		WithField("current_block", status.ContinuousSync.CurrentBlock).
		Info("Sync status")
	return nil
}
