package sync

import (
	"context"

	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handles administrative rebuilds: wipes the derived anchor rows for the
// requested models and schedules a full backfill from genesis up to the
// current block.
type RebuildWorker struct {
	config *config.Config
	log    *logrus.Entry
	db     *gorm.DB
	syncer *Syncer
}

func NewRebuildWorker(config *config.Config) (self *RebuildWorker) {
	self = new(RebuildWorker)
	self.config = config
	self.log = logger.NewSublogger("rebuild-worker")
	return
}

func (self *RebuildWorker) WithDb(v *gorm.DB) *RebuildWorker {
	self.db = v
	return self
}

func (self *RebuildWorker) WithSyncer(v *Syncer) *RebuildWorker {
	self.syncer = v
	return self
}

func (self *RebuildWorker) RebuildAnchors(ctx context.Context, run *queue.JobRun) (err error) {
	request, err := ParseJobRequest(run.Job)
	if err != nil {
		self.log.WithError(err).WithField("id", run.Job.Id).Error("Failed to parse job request")
		return
	}

	if len(request.Models) == 0 {
		return nil
	}

	// Wipe the derived rows first, the backfill writes them anew
	res := self.db.WithContext(ctx).
		Where("models && ?", pq.StringArray(request.Models)).
		Delete(&model.AnchorCommitment{})
	if res.Error != nil {
		self.log.WithError(res.Error).WithField("models", request.Models).Error("Failed to wipe anchor commitments")
		return res.Error
	}

	self.log.WithField("count", res.RowsAffected).
		WithField("models", request.Models).
		Info("Wiped anchor commitments for rebuild")

	return self.syncer.addSyncJob(ctx, QueueHistorySync, &JobRequest{
		JobType:   JobKindFull,
		FromBlock: 0,
		ToBlock:   self.syncer.currentBlock.Load(),
		Models:    normalizeModels(request.Models),
	})
}

// Workers bound to the three queues
type WorkerSet struct {
	*Worker
	*RebuildWorker
}
