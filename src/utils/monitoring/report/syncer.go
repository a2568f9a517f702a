package report

import (
	"go.uber.org/atomic"
)

type SyncerErrors struct {
	ProgressSaveFailures    atomic.Uint64 `json:"progress_save"`
	ScheduleFailures        atomic.Uint64 `json:"schedule"`
	HistorySyncFailures     atomic.Uint64 `json:"history_sync"`
	ContinuousSyncFailures  atomic.Uint64 `json:"continuous_sync"`
	ProofDownloadFailures   atomic.Uint64 `json:"proof_download"`
	AnchorInsertFailures    atomic.Uint64 `json:"anchor_insert"`
	StatusComputeFailures   atomic.Uint64 `json:"status_compute"`
	LogFilterFailures       atomic.Uint64 `json:"log_filter"`
	RebuildFailures         atomic.Uint64 `json:"rebuild"`
	ChainInfoFetchFailures  atomic.Uint64 `json:"chain_info_fetch"`
	PublishChannelOverflows atomic.Uint64 `json:"publish_channel_overflow"`
}

type SyncerState struct {
	StartBlock   atomic.Int64 `json:"start_block"`
	CurrentBlock atomic.Int64 `json:"current_block"`

	ModelsSyncing       atomic.Int64 `json:"models_syncing"`
	PendingHistorySyncs atomic.Int64 `json:"pending_history_syncs"`

	AverageBlocksProcessedPerMinute atomic.Float64 `json:"average_blocks_processed_per_minute"`

	BlockEventsProcessed atomic.Uint64 `json:"block_events_processed"`
	ReorgsProcessed      atomic.Uint64 `json:"reorgs_processed"`
	AnchorsDiscovered    atomic.Uint64 `json:"anchors_discovered"`
	AnchorsSaved         atomic.Uint64 `json:"anchors_saved"`
	BlockRangesSynced    atomic.Uint64 `json:"block_ranges_synced"`
}

type SyncerReport struct {
	State  SyncerState  `json:"state"`
	Errors SyncerErrors `json:"errors"`
}
