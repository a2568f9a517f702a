package config

import (
	"time"

	"github.com/spf13/viper"
)

type Syncer struct {
	// Blocks below head considered safe from reorgs
	BlockConfirmations int64

	// How often the listener polls the chain head
	PollInterval time.Duration

	// Buffered block events between the listener and the orchestrator
	EventChannelSize int

	// Max block span of a single log filter call
	FetchBatchSize int64

	// Max time one log filter call is retried before the job level retry
	// takes over. 0 is no limit
	FetchMaxElapsedTime time.Duration

	// Max time between log filter retries
	FetchMaxInterval time.Duration

	// How often sync status is written to the log
	StatusInterval time.Duration

	// Num of anchor commitments that triggers a database flush
	StoreBatchSize int

	// Max time anchor commitments wait for a flush
	StoreInterval time.Duration

	// Max time between flush retries upon database errors
	StoreMaxBackoffInterval time.Duration

	// Buffered block events between the orchestrator and the publisher
	PublishChannelSize int
}

func setSyncerDefaults() {
	viper.SetDefault("Syncer.BlockConfirmations", "20")
	viper.SetDefault("Syncer.PollInterval", "10s")
	viper.SetDefault("Syncer.EventChannelSize", "100")
	viper.SetDefault("Syncer.FetchBatchSize", "500")
	viper.SetDefault("Syncer.FetchMaxElapsedTime", "2m")
	viper.SetDefault("Syncer.FetchMaxInterval", "30s")
	viper.SetDefault("Syncer.StatusInterval", "60s")
	viper.SetDefault("Syncer.StoreBatchSize", "50")
	viper.SetDefault("Syncer.StoreInterval", "2s")
	viper.SetDefault("Syncer.StoreMaxBackoffInterval", "30s")
	viper.SetDefault("Syncer.PublishChannelSize", "100")
}
