package sync

import (
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batches anchor commitments coming from the workers and writes them to the
// database. Rows for an already applied range conflict on the event key and
// get dropped, which is what makes reprocessing safe.
type AnchorStore struct {
	*task.Processor[*model.AnchorCommitment, *model.AnchorCommitment]

	db      *gorm.DB
	monitor monitoring.Monitor
}

func NewAnchorStore(config *config.Config) (self *AnchorStore) {
	self = new(AnchorStore)

	self.Processor = task.NewProcessor[*model.AnchorCommitment, *model.AnchorCommitment](config, "anchor-store").
		WithBatchSize(config.Syncer.StoreBatchSize).
		WithOnFlush(config.Syncer.StoreInterval, self.flush).
		WithOnProcess(self.process).
		WithBackoff(0, config.Syncer.StoreMaxBackoffInterval)

	return
}

func (self *AnchorStore) WithDb(v *gorm.DB) *AnchorStore {
	self.db = v
	return self
}

func (self *AnchorStore) WithMonitor(v monitoring.Monitor) *AnchorStore {
	self.monitor = v
	return self
}

func (self *AnchorStore) WithInputChannel(v chan *model.AnchorCommitment) *AnchorStore {
	self.Processor = self.Processor.WithInputChannel(v)
	return self
}

func (self *AnchorStore) process(commitment *model.AnchorCommitment) (out []*model.AnchorCommitment, err error) {
	out = []*model.AnchorCommitment{commitment}
	return
}

func (self *AnchorStore) flush(commitments []*model.AnchorCommitment) (out []*model.AnchorCommitment, err error) {
	if len(commitments) == 0 {
		return
	}

	err = self.db.WithContext(self.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(commitments, len(commitments)).
		Error
	if err != nil {
		self.Log.WithError(err).Error("Failed to save anchor commitments")
		self.monitor.GetReport().Syncer.Errors.AnchorInsertFailures.Inc()
		return
	}

	self.monitor.GetReport().Syncer.State.AnchorsSaved.Add(uint64(len(commitments)))
	self.Log.WithField("count", len(commitments)).Debug("Saved anchor commitments")

	// Processing stops here, nothing consumes the output
	out = nil
	return
}
