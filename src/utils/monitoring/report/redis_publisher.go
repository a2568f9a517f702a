package report

import (
	"go.uber.org/atomic"
)

type RedisPublisherErrors struct {
	// Failed attempts, the message may still go through on a retry
	Publish atomic.Uint64 `json:"publish"`

	// Messages dropped after the retry budget ran out
	PersistentFailure atomic.Uint64 `json:"persistent_failure"`
}

type RedisPublisherState struct {
	LastSuccessfulMessageTimestamp atomic.Int64  `json:"last_successful_message_timestamp"`
	MessagesPublished              atomic.Uint64 `json:"messages_published"`
}

type RedisPublisherReport struct {
	State  RedisPublisherState  `json:"state"`
	Errors RedisPublisherErrors `json:"errors"`
}
