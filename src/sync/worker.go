package sync

import (
	"context"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Anchor events recorded on the chain within a block range
type AnchorLogSource interface {
	FilterAnchorLogs(ctx context.Context, from, to int64) ([]*eth.AnchorLog, error)
}

// Proof payloads resolved from the anchor service, opaque to the syncer
type ProofSource interface {
	GetProof(ctx context.Context, root string) ([]byte, error)
}

// Executes history and continuous sync jobs: scans the block range for
// anchor events, resolves their proofs and streams commitment rows to the
// anchors store. Safe to rerun over an already applied range, the store
// ignores duplicate rows.
type Worker struct {
	config  *config.Config
	log     *logrus.Entry
	chain   AnchorLogSource
	proofs  ProofSource
	monitor monitoring.Monitor
	output  chan *model.AnchorCommitment
}

func NewWorker(config *config.Config) (self *Worker) {
	self = new(Worker)
	self.config = config
	self.log = logger.NewSublogger("sync-worker")
	return
}

func (self *Worker) WithChain(v AnchorLogSource) *Worker {
	self.chain = v
	return self
}

func (self *Worker) WithProofs(v ProofSource) *Worker {
	self.proofs = v
	return self
}

func (self *Worker) WithMonitor(v monitoring.Monitor) *Worker {
	self.monitor = v
	return self
}

func (self *Worker) WithOutputChannel(v chan *model.AnchorCommitment) *Worker {
	self.output = v
	return self
}

func (self *Worker) SyncHistory(ctx context.Context, run *queue.JobRun) error {
	return self.syncRange(ctx, run)
}

func (self *Worker) SyncContinuous(ctx context.Context, run *queue.JobRun) error {
	return self.syncRange(ctx, run)
}

func (self *Worker) syncRange(ctx context.Context, run *queue.JobRun) (err error) {
	request, err := ParseJobRequest(run.Job)
	if err != nil {
		self.log.WithError(err).WithField("id", run.Job.Id).Error("Failed to parse job request")
		return
	}

	if len(request.Models) == 0 {
		// Nothing was enrolled when this got scheduled
		return nil
	}

	from := request.FromBlock
	if request.CurrentBlock != nil && *request.CurrentBlock > from {
		// Resume where the previous attempt got to
		from = *request.CurrentBlock
	}

	for start := from; start <= request.ToBlock; start += self.config.Syncer.FetchBatchSize {
		end := start + self.config.Syncer.FetchBatchSize - 1
		if end > request.ToBlock {
			end = request.ToBlock
		}

		var logs []*eth.AnchorLog
		err = task.NewRetry().
			WithContext(ctx).
			WithMaxElapsedTime(self.config.Syncer.FetchMaxElapsedTime).
			WithMaxInterval(self.config.Syncer.FetchMaxInterval).
			WithOnError(func(err error, isDurationAcceptable bool) error {
				self.log.WithError(err).WithField("from", start).WithField("to", end).Error("Failed to filter anchor logs, retrying")
				self.monitor.GetReport().Syncer.Errors.LogFilterFailures.Inc()
				return err
			}).
			Run(func() (err error) {
				logs, err = self.chain.FilterAnchorLogs(ctx, start, end)
				return
			})
		if err != nil {
			// The queue retries the whole job, the saved cursor skips
			// the chunks already done
			return err
		}

		for _, anchorLog := range logs {
			err = self.emit(ctx, anchorLog, request.Models)
			if err != nil {
				return err
			}
		}

		cursor := end
		request.CurrentBlock = &cursor
		err = run.SaveData(ctx, request)
		if err != nil && ctx.Err() == nil {
			// Progress within the job is best effort
			self.log.WithError(err).WithField("id", run.Job.Id).Warn("Failed to save job progress")
		}
	}

	self.monitor.GetReport().Syncer.State.BlockRangesSynced.Inc()
	self.log.WithField("from", request.FromBlock).
		WithField("to", request.ToBlock).
		WithField("models", len(request.Models)).
		Debug("Synced block range")
	return nil
}

func (self *Worker) emit(ctx context.Context, anchorLog *eth.AnchorLog, models []string) (err error) {
	proof, err := self.proofs.GetProof(ctx, anchorLog.Root)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// The commitment row is still written, the proof can be filled
		// in later by a rebuild
		self.log.WithError(err).WithField("root", anchorLog.Root).Warn("Failed to download anchor proof")
		self.monitor.GetReport().Syncer.Errors.ProofDownloadFailures.Inc()
		proof = nil
	}

	commitment := &model.AnchorCommitment{
		TxHash:      anchorLog.TxHash,
		LogIndex:    anchorLog.LogIndex,
		BlockNumber: anchorLog.BlockNumber,
		BlockHash:   anchorLog.BlockHash,
		Root:        anchorLog.Root,
		Proof:       proof,
		Models:      pq.StringArray(models),
		CreatedOn:   time.Now(),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case self.output <- commitment:
	}

	self.monitor.GetReport().Syncer.State.AnchorsDiscovered.Inc()
	return nil
}
