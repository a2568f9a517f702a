package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	monitor_syncer "github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring/syncer"

	"github.com/stretchr/testify/suite"
)

func TestStatusTestSuite(t *testing.T) {
	suite.Run(t, new(StatusTestSuite))
}

type StatusTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	scheduler *fakeScheduler
	progress  *fakeProgress
	syncer    *Syncer
}

func (s *StatusTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
}

func (s *StatusTestSuite) TearDownSuite() {
	s.cancel()
}

func (s *StatusTestSuite) SetupTest() {
	s.scheduler = newFakeScheduler()
	s.progress = &fakeProgress{current: &Progress{BlockHash: "0xtip", BlockNumber: 480, Synced: true}}

	s.syncer = NewSyncer(s.config).
		WithQueue(s.scheduler).
		WithChain(&fakeChain{
			tip:     &eth.BlockPtr{Number: 480, Hash: "0xtip"},
			network: &eth.NetworkInfo{ChainId: 1},
		}).
		WithModelSource(&fakeModelSource{models: []string{"m1", "m2"}}).
		WithWorkers(&fakeWorkers{}).
		WithProgressStorage(s.progress).
		WithMonitor(monitor_syncer.NewMonitor())

	s.Require().NoError(s.syncer.init())
}

func (s *StatusTestSuite) queuedJob(queueName string, state model.JobState, request *JobRequest) *model.Job {
	buf, err := json.Marshal(request)
	s.Require().NoError(err)

	job := &model.Job{
		Id:        "status-job",
		Queue:     queueName,
		State:     state,
		CreatedOn: time.Now(),
	}
	if state == model.JobStateActive {
		job.StartedOn = sql.NullTime{Time: time.Now(), Valid: true}
	}
	s.Require().NoError(job.Data.Set(buf))

	byQueue, ok := s.scheduler.byState[state]
	if !ok {
		byQueue = make(map[string][]*model.Job)
		s.scheduler.byState[state] = byQueue
	}
	byQueue[queueName] = append(byQueue[queueName], job)
	return job
}

func (s *StatusTestSuite) TestContinuousFallsBackToConfirmedEdge() {
	s.syncer.currentBlock.Store(499)

	status, err := s.syncer.SyncStatus(s.ctx)
	s.Require().NoError(err)

	s.Empty(status.ActiveSyncs)
	s.Empty(status.PendingSyncs)

	s.Equal(int64(480), status.ContinuousSync.StartBlock)
	s.Equal(int64(499), status.ContinuousSync.LatestBlock)
	s.Equal(int64(479), status.ContinuousSync.CurrentBlock)
	s.Equal(s.config.Syncer.BlockConfirmations, status.ContinuousSync.Confirmations)
	s.Equal([]string{"m1", "m2"}, status.ContinuousSync.Models)
}

func (s *StatusTestSuite) TestContinuousFollowsTheActiveJob() {
	s.syncer.currentBlock.Store(499)
	s.queuedJob(QueueContinuousSync, model.JobStateActive, &JobRequest{
		JobType:   JobKindContinuous,
		FromBlock: 497,
		ToBlock:   497,
		Models:    []string{"m1"},
	})

	status, err := s.syncer.SyncStatus(s.ctx)
	s.Require().NoError(err)

	s.Equal(int64(497), status.ContinuousSync.CurrentBlock)
	s.Equal([]string{"m1"}, status.ContinuousSync.Models)
	s.Equal(int64(499), status.ContinuousSync.LatestBlock)
}

func (s *StatusTestSuite) TestActiveSyncReportsWorkerCursor() {
	cursor := int64(42)
	withCursor := s.queuedJob(QueueHistorySync, model.JobStateActive, &JobRequest{
		JobType:      JobKindCatchup,
		FromBlock:    0,
		ToBlock:      480,
		Models:       []string{"m1"},
		CurrentBlock: &cursor,
	})
	s.queuedJob(QueueHistorySync, model.JobStateActive, &JobRequest{
		JobType:   JobKindCatchup,
		FromBlock: 100,
		ToBlock:   300,
		Models:    []string{"m2"},
	})

	status, err := s.syncer.SyncStatus(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(status.ActiveSyncs, 2)

	s.Equal([]string{"m1"}, status.ActiveSyncs[0].Models)
	s.Equal(int64(0), status.ActiveSyncs[0].StartBlock)
	s.Equal(int64(42), status.ActiveSyncs[0].CurrentBlock)
	s.Equal(int64(480), status.ActiveSyncs[0].EndBlock)
	s.Equal(withCursor.StartedOn.Time, status.ActiveSyncs[0].StartedAt)

	// Before the first cursor save the job sits at its start block
	s.Equal(int64(100), status.ActiveSyncs[1].CurrentBlock)
}

func (s *StatusTestSuite) TestPendingSyncs() {
	s.queuedJob(QueueHistorySync, model.JobStateCreated, &JobRequest{
		JobType:   JobKindCatchup,
		FromBlock: 200,
		ToBlock:   480,
		Models:    []string{"m2"},
	})

	status, err := s.syncer.SyncStatus(s.ctx)
	s.Require().NoError(err)

	s.Empty(status.ActiveSyncs)
	s.Require().Len(status.PendingSyncs, 1)
	s.Equal([]string{"m2"}, status.PendingSyncs[0].Models)
	s.Equal(int64(200), status.PendingSyncs[0].StartBlock)
	s.Equal(int64(480), status.PendingSyncs[0].EndBlock)
}
