package model

import "database/sql"

type SyncState struct {
	// Id always equals one
	Id int `gorm:"primaryKey"`

	// Hash of the last fully processed block
	// Next block needs to have this hash set as its parent hash
	ProcessedBlockHash sql.NullString

	// Height of the last fully processed block
	ProcessedBlockNumber sql.NullInt64
}

func (SyncState) TableName() string {
	return "sync_state"
}
