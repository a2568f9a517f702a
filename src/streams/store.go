package streams

import (
	"context"
	"errors"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Returned when a model's historical sync hasn't finished yet, its data
// can't be served as authoritative
var ErrModelNotSynced = errors.New("model is not synced yet")

// Access to the indexed models enrollment table and the anchor rows derived
// for them. Queries are gated by the readiness predicate injected from the
// syncer, so a partially synced model never serves data.
type Store struct {
	db  *gorm.DB
	log *logrus.Entry

	syncComplete func(modelId string) bool
}

func NewStore(db *gorm.DB) (self *Store) {
	self = new(Store)
	self.db = db
	self.log = logger.NewSublogger("streams-store")

	// Until the syncer hooks in, nothing is served
	self.syncComplete = func(string) bool { return false }
	return
}

func (self *Store) WithSyncCheck(f func(modelId string) bool) *Store {
	self.syncComplete = f
	return self
}

// Ids of all enrolled models
func (self *Store) IndexedModels(ctx context.Context) (out []string, err error) {
	err = self.db.WithContext(ctx).
		Model(&model.IndexedModel{}).
		Order("model_id ASC").
		Pluck("model_id", &out).
		Error
	return
}

// Enrolls models in the index, already present ones are left untouched
func (self *Store) AddModels(ctx context.Context, modelIds []string) (err error) {
	if len(modelIds) == 0 {
		return nil
	}

	rows := make([]model.IndexedModel, 0, len(modelIds))
	for _, id := range modelIds {
		rows = append(rows, model.IndexedModel{ModelId: id, CreatedOn: time.Now()})
	}

	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).
		Error
}

func (self *Store) RemoveModels(ctx context.Context, modelIds []string) (err error) {
	if len(modelIds) == 0 {
		return nil
	}

	return self.db.WithContext(ctx).
		Where("model_id IN ?", modelIds).
		Delete(&model.IndexedModel{}).
		Error
}

// Newest anchor commitments referencing the model.
// Refused until the model's backfill is complete.
func (self *Store) ListAnchors(ctx context.Context, modelId string, limit int) (out []*model.AnchorCommitment, err error) {
	if !self.syncComplete(modelId) {
		return nil, ErrModelNotSynced
	}

	err = self.db.WithContext(ctx).
		Where("? = ANY(models)", modelId).
		Order("block_number DESC, tx_hash ASC, log_index ASC").
		Limit(limit).
		Find(&out).
		Error
	return
}
