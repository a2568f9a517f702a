package sync

import (
	"context"
	"database/sql"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Last fully processed block, persisted across restarts.
// Synced false means nothing was ever recorded, which is distinct from
// having processed block 0.
type Progress struct {
	BlockHash   string
	BlockNumber int64
	Synced      bool
}

// Storage for the singleton sync progress row
type ProgressStorage interface {
	Load(ctx context.Context) (*Progress, error)
	Save(ctx context.Context, progress *Progress) error
}

type ProgressStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewProgressStore(db *gorm.DB) (self *ProgressStore) {
	self = new(ProgressStore)
	self.db = db
	self.log = logger.NewSublogger("progress-store")
	return
}

// Creates the backing table when missing and returns the stored row
func (self *ProgressStore) Load(ctx context.Context) (out *Progress, err error) {
	err = self.db.WithContext(ctx).AutoMigrate(&model.SyncState{})
	if err != nil {
		self.log.WithError(err).Error("Failed to migrate the sync state table")
		return
	}

	state := model.SyncState{Id: 1}
	err = self.db.WithContext(ctx).FirstOrCreate(&state).Error
	if err != nil {
		return
	}

	out = new(Progress)
	if state.ProcessedBlockHash.Valid && state.ProcessedBlockNumber.Valid {
		out.BlockHash = state.ProcessedBlockHash.String
		out.BlockNumber = state.ProcessedBlockNumber.Int64
		out.Synced = true
	}
	return
}

func (self *ProgressStore) Save(ctx context.Context, progress *Progress) (err error) {
	state := model.SyncState{
		Id:                   1,
		ProcessedBlockHash:   sql.NullString{String: progress.BlockHash, Valid: true},
		ProcessedBlockNumber: sql.NullInt64{Int64: progress.BlockNumber, Valid: true},
	}

	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&state).
		Error
}
