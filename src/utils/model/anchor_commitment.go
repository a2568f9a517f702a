package model

import (
	"time"

	"github.com/lib/pq"
)

const TableAnchorCommitment = "anchor_commitments"

// One anchor event picked up from the chain.
// Tx hash and log index identify the event, reprocessing the same range is a no-op.
type AnchorCommitment struct {
	TxHash   string `gorm:"primaryKey"`
	LogIndex uint   `gorm:"primaryKey"`

	BlockNumber int64
	BlockHash   string

	// Merkle root the anchor commits to
	Root string

	// Proof payload downloaded from the anchor service, may be empty
	Proof []byte

	// Models the originating sync job was scoped to
	Models pq.StringArray `gorm:"type:text[]"`

	CreatedOn time.Time
}

func (AnchorCommitment) TableName() string {
	return TableAnchorCommitment
}
