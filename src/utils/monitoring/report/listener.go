package report

import (
	"go.uber.org/atomic"
)

type ListenerErrors struct {
	HeadDownloadErrors  atomic.Uint64 `json:"head_download"`
	BlockDownloadErrors atomic.Uint64 `json:"block_download"`
}

type ListenerState struct {
	ChainHeight     atomic.Int64 `json:"chain_height"`
	ConfirmedHeight atomic.Int64 `json:"confirmed_height"`

	BlocksEmitted atomic.Uint64 `json:"blocks_emitted"`
	ReorgsSpotted atomic.Uint64 `json:"reorgs_spotted"`

	LastBlockTimestamp atomic.Int64 `json:"last_block_timestamp"`
}

type ListenerReport struct {
	State  ListenerState  `json:"state"`
	Errors ListenerErrors `json:"errors"`
}
