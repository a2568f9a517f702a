package report

type Report struct {
	Run            *RunReport            `json:"run,omitempty"`
	Syncer         *SyncerReport         `json:"syncer,omitempty"`
	Queue          *QueueReport          `json:"queue,omitempty"`
	Listener       *ListenerReport       `json:"listener,omitempty"`
	RedisPublisher *RedisPublisherReport `json:"redis_publisher,omitempty"`
}
