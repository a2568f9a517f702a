package listener

import (
	"context"
	"errors"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"
)

// Source of chain data, implemented by eth.Client
type Source interface {
	GetBlock(ctx context.Context, offset int64) (*eth.BlockPtr, error)
	GetBlockByNumber(ctx context.Context, number int64) (*eth.BlockPtr, error)
}

// Task that periodically polls the chain head and emits every block that
// gathered enough confirmations. Blocks come out in order, without gaps.
// A block whose parent hash doesn't match the previously emitted one is
// flagged as reorganized.
type BlockListener struct {
	*task.Task

	// Runtime configuration
	confirmations int64
	client        Source
	monitor       monitoring.Monitor
	startBlock    func(ctx context.Context) (number int64, hash string, err error)

	// Output channel
	Output chan *BlockEvent

	// Runtime variables
	lastNumber int64
	lastHash   string
}

func NewBlockListener(config *config.Config) (self *BlockListener) {
	self = new(BlockListener)

	self.confirmations = config.Syncer.BlockConfirmations

	self.Output = make(chan *BlockEvent, config.Syncer.EventChannelSize)

	self.Task = task.NewTask(config, "block-listener").
		WithOnBeforeStart(self.initStartBlock).
		WithPeriodicSubtaskFunc(config.Syncer.PollInterval, self.advance).
		WithOnAfterStop(func() {
			close(self.Output)
		})

	return
}

func (self *BlockListener) WithClient(client Source) *BlockListener {
	self.client = client
	return self
}

func (self *BlockListener) WithMonitor(monitor monitoring.Monitor) *BlockListener {
	self.monitor = monitor
	return self
}

// Resume point, usually the persisted sync progress. Evaluated upon start,
// after the progress got initialized.
func (self *BlockListener) WithStartBlock(f func(ctx context.Context) (number int64, hash string, err error)) *BlockListener {
	self.startBlock = f
	return self
}

func (self *BlockListener) initStartBlock() (err error) {
	self.lastNumber, self.lastHash, err = self.startBlock(self.Ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to get the starting block")
		return
	}

	self.Log.WithField("number", self.lastNumber).WithField("hash", self.lastHash).Info("Resuming from block")
	return nil
}

// Walks from the last emitted block up to the confirmed edge of the chain.
// Download errors are tolerated, the walk picks up where it left off on the
// next tick.
func (self *BlockListener) advance() error {
	head, err := self.client.GetBlock(self.Ctx, 0)
	if err != nil {
		if errors.Is(err, context.Canceled) && self.IsStopping.Load() {
			return nil
		}
		self.Log.WithError(err).Error("Failed to get the chain head")
		self.monitor.GetReport().Listener.Errors.HeadDownloadErrors.Inc()
		return nil
	}

	self.monitor.GetReport().Listener.State.ChainHeight.Store(head.Number)

	// Everything up to this block is considered final
	confirmedEdge := head.Number - self.confirmations
	if confirmedEdge < 0 {
		confirmedEdge = 0
	}
	self.monitor.GetReport().Listener.State.ConfirmedHeight.Store(confirmedEdge)

	if confirmedEdge <= self.lastNumber {
		// Nothing changed, retry later
		return nil
	}

	for number := self.lastNumber + 1; number <= confirmedEdge; number++ {
		if self.IsStopping.Load() {
			return nil
		}

		block, err := self.client.GetBlockByNumber(self.Ctx, number)
		if err != nil {
			if errors.Is(err, context.Canceled) && self.IsStopping.Load() {
				return nil
			}
			self.Log.WithError(err).WithField("number", number).Error("Failed to download block, retrying next tick")
			self.monitor.GetReport().Listener.Errors.BlockDownloadErrors.Inc()
			return nil
		}

		event := &BlockEvent{
			Number:     block.Number,
			Hash:       block.Hash,
			ParentHash: block.ParentHash,
			Timestamp:  time.Now().Unix(),
		}

		if self.lastHash != "" && block.ParentHash != self.lastHash {
			// Chain got rewritten below the confirmation depth
			event.Reorganized = true
			event.ExpectedParentHash = self.lastHash

			self.Log.WithField("number", number).
				WithField("expected_parent", self.lastHash).
				WithField("got_parent", block.ParentHash).
				Warn("Block reorganization detected")

			self.monitor.GetReport().Listener.State.ReorgsSpotted.Inc()
		}

		select {
		case <-self.StopChannel:
			return nil
		case self.Output <- event:
		}

		self.monitor.GetReport().Listener.State.BlocksEmitted.Inc()
		self.monitor.GetReport().Listener.State.LastBlockTimestamp.Store(event.Timestamp)

		// Prepare for the next block
		self.lastNumber = block.Number
		self.lastHash = block.Hash
	}

	return nil
}
