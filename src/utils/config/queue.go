package config

import (
	"time"

	"github.com/spf13/viper"
)

type Queue struct {
	// Num of simultaneously processed jobs
	MaxWorkers int

	// Max num of jobs waiting for a free worker
	MaxQueueSize int

	// How often the dispatcher polls for created jobs
	DispatchInterval time.Duration

	// Max num of jobs claimed in one dispatch round
	DispatchBatchSize int

	// Num of retries before a job is marked failed
	MaxRetries int

	// Base delay before a failed job is retried, doubled on each retry
	RetryBackoffInterval time.Duration

	// Upper bound for the retry delay
	RetryMaxBackoffInterval time.Duration

	// Postgres channel the insert trigger notifies on
	NotifyChannel string

	// Cron schedule for archiving terminal jobs and requeueing stalled ones
	JanitorSchedule string

	// Terminal jobs older than this get deleted
	ArchiveAfter time.Duration

	// Active jobs started longer ago than this are considered abandoned
	StalledAfter time.Duration
}

func setQueueDefaults() {
	viper.SetDefault("Queue.MaxWorkers", "3")
	viper.SetDefault("Queue.MaxQueueSize", "100")
	viper.SetDefault("Queue.DispatchInterval", "5s")
	viper.SetDefault("Queue.DispatchBatchSize", "10")
	viper.SetDefault("Queue.MaxRetries", "3")
	viper.SetDefault("Queue.RetryBackoffInterval", "15s")
	viper.SetDefault("Queue.RetryMaxBackoffInterval", "5m")
	viper.SetDefault("Queue.NotifyChannel", "jobs_inserted")
	viper.SetDefault("Queue.JanitorSchedule", "0 0 3 * * *")
	viper.SetDefault("Queue.ArchiveAfter", "168h")
	viper.SetDefault("Queue.StalledAfter", "30m")
}
