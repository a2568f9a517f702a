package sync

import (
	"context"
	"errors"

	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/streams"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/cas"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/listener"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	monitor_syncer "github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring/syncer"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/publisher"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"
)

type Controller struct {
	*task.Task
}

// Main class that orchestrates the sync pipeline.
// Connects the block listener, the job queue, the workers and the REST API
func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)
	self.Task = task.NewTask(config, "controller")

	// SQL database
	db, err := model.NewConnection(self.Ctx, config, "sync")
	if err != nil {
		return
	}

	// Monitoring
	monitor := monitor_syncer.NewMonitor().
		WithMaxHistorySize(30)
	server := monitoring.NewServer(config).
		WithMonitor(monitor)

	// Chain provider
	ethClient, err := eth.NewClient(config)
	if err != nil {
		self.Log.WithError(err).Error("Could not connect to the chain provider")
		return
	}

	// Anchor service client, downloads witness proofs
	casClient := cas.NewClient(config)

	// Stream index backed by the database. Anchor queries get refused until
	// the syncer reports the model complete
	streamStore := streams.NewStore(db)

	// Durable sync progress
	progress := NewProgressStore(db)

	// Commitments flow from the workers into the batched store
	commitments := make(chan *model.AnchorCommitment)

	anchorStore := NewAnchorStore(config).
		WithDb(db).
		WithMonitor(monitor).
		WithInputChannel(commitments)

	// Handles history and continuous sync jobs
	worker := NewWorker(config).
		WithChain(ethClient).
		WithProofs(casClient).
		WithMonitor(monitor).
		WithOutputChannel(commitments)

	// Handles rebuild jobs
	rebuild := NewRebuildWorker(config).
		WithDb(db)

	// Wakes the dispatcher upon job inserts
	streamer := queue.NewStreamer(config).
		WithMonitor(monitor)

	taskQueue := queue.NewTaskQueue(config).
		WithDB(db).
		WithMonitor(monitor).
		WithWakeChannel(streamer.Output)

	// Emits confirmed blocks, starting where the last run left off.
	// The syncer saves the starting point before the listener gets started
	blockListener := listener.NewBlockListener(config).
		WithClient(ethClient).
		WithMonitor(monitor).
		WithStartBlock(func(ctx context.Context) (int64, string, error) {
			p, err := progress.Load(ctx)
			if err != nil {
				return 0, "", err
			}
			if !p.Synced {
				return 0, "", errors.New("sync progress not initialized")
			}
			return p.BlockNumber, p.BlockHash, nil
		})

	syncer := NewSyncer(config).
		WithQueue(taskQueue).
		WithChain(ethClient).
		WithModelSource(streamStore).
		WithWorkers(&WorkerSet{Worker: worker, RebuildWorker: rebuild}).
		WithProgressStorage(progress).
		WithMonitor(monitor).
		WithInputChannel(blockListener.Output)

	rebuild.WithSyncer(syncer)
	taskQueue.WithOnJobDone(syncer.OnJobDone)
	streamStore.WithSyncCheck(syncer.SyncComplete)

	// Nested so the listener starts after the syncer initialized and stops
	// before the syncer drains its input
	syncer.Task.WithSubtask(blockListener.Task)

	// REST API
	api := NewServer(config).
		WithSyncer(syncer).
		WithStore(streamStore)

	// Closes the chain connection after all subtasks stopped
	self.Task = self.Task.
		WithOnAfterStop(ethClient.Close)

	// Setup everything, will start upon calling Controller.Start()
	self.Task.
		WithSubtask(syncer.Task).
		WithSubtask(taskQueue.Task).
		WithSubtask(streamer.Task).
		WithSubtask(anchorStore.Task)

	// Optionally publishes block events to Redis
	if config.Redis.Enabled {
		publish := make(chan *BlockEventMessage, config.Syncer.PublishChannelSize)
		syncer.WithPublishChannel(publish)

		redisPublisher := publisher.NewRedisPublisher[*BlockEventMessage](config, "block_publisher").
			WithInputChannel(publish).
			WithMonitor(monitor)

		self.Task.WithSubtask(redisPublisher.Task)
	}

	self.Task.
		WithSubtask(api.Task).
		WithSubtask(monitor.Task).
		WithSubtask(server.Task)
	return
}
