package report

import (
	"go.uber.org/atomic"
)

type QueueErrors struct {
	DbClaimFailures  atomic.Uint64 `json:"db_claim"`
	DbUpdateFailures atomic.Uint64 `json:"db_update"`
	ListenFailures   atomic.Uint64 `json:"listen"`
}

type QueueState struct {
	JobsAdded     atomic.Uint64 `json:"jobs_added"`
	JobsCompleted atomic.Uint64 `json:"jobs_completed"`
	JobsRetried   atomic.Uint64 `json:"jobs_retried"`
	JobsFailed    atomic.Uint64 `json:"jobs_failed"`
	JobsStalled   atomic.Uint64 `json:"jobs_stalled"`
	JobsArchived  atomic.Uint64 `json:"jobs_archived"`
	JobsActive    atomic.Int64  `json:"jobs_active"`
}

type QueueReport struct {
	State  QueueState  `json:"state"`
	Errors QueueErrors `json:"errors"`
}
