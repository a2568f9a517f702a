package sync

import (
	"encoding/json"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
)

// Queue names, one registered handler each
const (
	QueueHistorySync    = "history_sync"
	QueueContinuousSync = "continuous_sync"
	QueueRebuildAnchors = "rebuild_anchors"
)

type JobKind string

const (
	// Bounded backfill scheduled at init or upon model enrollment
	JobKindCatchup JobKind = "catchup"

	// Bounded backfill scheduled by the rebuild worker after wiping derived rows
	JobKindFull JobKind = "full"

	// Single block unit of live tailing
	JobKindContinuous JobKind = "continuous"
)

// Payload carried in the job's data column.
// FromBlock <= ToBlock always, continuous jobs cover exactly one block.
type JobRequest struct {
	JobType   JobKind  `json:"jobType"`
	FromBlock int64    `json:"fromBlock"`
	ToBlock   int64    `json:"toBlock"`
	Models    []string `json:"models"`

	// Advanced by the worker as it scans the range
	CurrentBlock *int64 `json:"currentBlock,omitempty"`
}

func ParseJobRequest(job *model.Job) (out *JobRequest, err error) {
	out = new(JobRequest)
	err = json.Unmarshal(job.Data.Bytes, out)
	return
}

// One running backfill job
type ActiveSyncStatus struct {
	Models       []string  `json:"models"`
	StartBlock   int64     `json:"startBlock"`
	CurrentBlock int64     `json:"currentBlock"`
	EndBlock     int64     `json:"endBlock"`
	StartedAt    time.Time `json:"startedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// One backfill job waiting for a worker
type PendingSyncStatus struct {
	Models     []string  `json:"models"`
	StartBlock int64     `json:"startBlock"`
	EndBlock   int64     `json:"endBlock"`
	CreatedAt  time.Time `json:"createdAt"`
}

// State of the live tail
type ContinuousSyncStatus struct {
	StartBlock    int64    `json:"startBlock"`
	LatestBlock   int64    `json:"latestBlock"`
	CurrentBlock  int64    `json:"currentBlock"`
	Confirmations int64    `json:"confirmations"`
	Models        []string `json:"models"`
}

// Snapshot returned by SyncStatus, computed fresh from the queue contents
type Status struct {
	ActiveSyncs    []ActiveSyncStatus   `json:"activeSyncs"`
	PendingSyncs   []PendingSyncStatus  `json:"pendingSyncs"`
	ContinuousSync ContinuousSyncStatus `json:"continuousSync"`
}

// Message fanned out to Redis after a block event got handled
type BlockEventMessage struct {
	Network     string `json:"network"`
	BlockHash   string `json:"blockHash"`
	BlockNumber int64  `json:"blockNumber"`
	Reorganized bool   `json:"reorganized"`
	Timestamp   int64  `json:"timestamp"`
}

func (self *BlockEventMessage) MarshalBinary() ([]byte, error) {
	return json.Marshal(self)
}
