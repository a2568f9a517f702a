package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/eth"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/listener"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	monitor_syncer "github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring/syncer"

	"github.com/stretchr/testify/suite"
)

// In memory JobScheduler, records every scheduled request
type fakeScheduler struct {
	mtx      sync.Mutex
	nextId   int
	handlers map[string]queue.Handler
	jobs     []*scheduledJob
	byState  map[model.JobState]map[string][]*model.Job
	failWith error
}

type scheduledJob struct {
	Queue   string
	Request *JobRequest
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		byState: make(map[model.JobState]map[string][]*model.Job),
	}
}

func (self *fakeScheduler) Init(handlers map[string]queue.Handler) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.handlers = handlers
	return nil
}

func (self *fakeScheduler) AddJob(ctx context.Context, queueName string, data any) (*model.Job, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.failWith != nil {
		return nil, self.failWith
	}

	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	request := new(JobRequest)
	err = json.Unmarshal(buf, request)
	if err != nil {
		return nil, err
	}
	self.jobs = append(self.jobs, &scheduledJob{Queue: queueName, Request: request})

	self.nextId++
	job := &model.Job{
		Id:        fmt.Sprintf("job-%d", self.nextId),
		Queue:     queueName,
		State:     model.JobStateCreated,
		CreatedOn: time.Now(),
	}
	err = job.Data.Set(buf)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (self *fakeScheduler) GetJobsByState(ctx context.Context, state model.JobState, queueNames []string) (map[string][]*model.Job, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	out := make(map[string][]*model.Job, len(queueNames))
	for _, name := range queueNames {
		out[name] = append([]*model.Job{}, self.byState[state][name]...)
	}
	return out, nil
}

func (self *fakeScheduler) scheduled() []*scheduledJob {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return append([]*scheduledJob{}, self.jobs...)
}

func (self *fakeScheduler) reset() {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.jobs = nil
}

type fakeChain struct {
	mtx        sync.Mutex
	tip        *eth.BlockPtr
	network    *eth.NetworkInfo
	lastOffset int64
	err        error
}

func (self *fakeChain) GetBlock(ctx context.Context, offset int64) (*eth.BlockPtr, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.lastOffset = offset
	if self.err != nil {
		return nil, self.err
	}
	return self.tip, nil
}

func (self *fakeChain) GetNetwork(ctx context.Context) (*eth.NetworkInfo, error) {
	return self.network, nil
}

type fakeModelSource struct {
	models []string
}

func (self *fakeModelSource) IndexedModels(ctx context.Context) ([]string, error) {
	return self.models, nil
}

type fakeProgress struct {
	mtx     sync.Mutex
	current *Progress
	saves   []*Progress
}

func (self *fakeProgress) Load(ctx context.Context) (*Progress, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	if self.current == nil {
		return &Progress{}, nil
	}
	out := *self.current
	return &out, nil
}

func (self *fakeProgress) Save(ctx context.Context, progress *Progress) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	out := *progress
	self.current = &out
	self.saves = append(self.saves, &out)
	return nil
}

func (self *fakeProgress) lastSave() *Progress {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	if len(self.saves) == 0 {
		return nil
	}
	return self.saves[len(self.saves)-1]
}

type fakeWorkers struct{}

func (self *fakeWorkers) SyncHistory(ctx context.Context, run *queue.JobRun) error    { return nil }
func (self *fakeWorkers) SyncContinuous(ctx context.Context, run *queue.JobRun) error { return nil }
func (self *fakeWorkers) RebuildAnchors(ctx context.Context, run *queue.JobRun) error { return nil }

func TestSyncerTestSuite(t *testing.T) {
	suite.Run(t, new(SyncerTestSuite))
}

type SyncerTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	scheduler *fakeScheduler
	chain     *fakeChain
	source    *fakeModelSource
	progress  *fakeProgress
	syncer    *Syncer
}

func (s *SyncerTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
}

func (s *SyncerTestSuite) TearDownSuite() {
	s.cancel()
}

func (s *SyncerTestSuite) SetupTest() {
	s.scheduler = newFakeScheduler()
	s.chain = &fakeChain{
		tip:     &eth.BlockPtr{Number: 480, Hash: "0xtip", ParentHash: "0xbeforetip"},
		network: &eth.NetworkInfo{ChainId: 1},
	}
	s.source = &fakeModelSource{models: []string{"m1", "m2"}}
	s.progress = &fakeProgress{}
	s.syncer = s.newSyncer()
}

func (s *SyncerTestSuite) newSyncer() *Syncer {
	return NewSyncer(s.config).
		WithQueue(s.scheduler).
		WithChain(s.chain).
		WithModelSource(s.source).
		WithWorkers(&fakeWorkers{}).
		WithProgressStorage(s.progress).
		WithMonitor(monitor_syncer.NewMonitor())
}

// Progress row at the safe tip, init schedules nothing
func (s *SyncerTestSuite) initAtTip() {
	s.progress.current = &Progress{BlockHash: "0xtip", BlockNumber: 480, Synced: true}
	s.Require().NoError(s.syncer.init())
	s.scheduler.reset()
}

func (s *SyncerTestSuite) TestInitFreshBackfillsFromGenesis() {
	err := s.syncer.init()
	s.Require().NoError(err)

	// Safe tip queried at the configured confirmation depth
	s.Equal(-s.config.Syncer.BlockConfirmations, s.chain.lastOffset)

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(QueueHistorySync, jobs[0].Queue)
	s.Equal(JobKindCatchup, jobs[0].Request.JobType)
	s.Equal(int64(0), jobs[0].Request.FromBlock)
	s.Equal(int64(480), jobs[0].Request.ToBlock)
	s.Equal([]string{"m1", "m2"}, jobs[0].Request.Models)

	// Progress moved to the safe tip so the listener resumes there
	last := s.progress.lastSave()
	s.Require().NotNil(last)
	s.Equal(int64(480), last.BlockNumber)
	s.Equal("0xtip", last.BlockHash)
	s.True(last.Synced)

	s.Equal("eip155:1", s.syncer.network.Load())
	s.Equal(int64(480), s.syncer.startBlock.Load())
	s.Equal(int64(480), s.syncer.currentBlock.Load())
}

func (s *SyncerTestSuite) TestInitResumesBehindTheTip() {
	s.progress.current = &Progress{BlockHash: "0xh100", BlockNumber: 100, Synced: true}

	err := s.syncer.init()
	s.Require().NoError(err)

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(QueueHistorySync, jobs[0].Queue)
	s.Equal(int64(100), jobs[0].Request.FromBlock)
	s.Equal(int64(480), jobs[0].Request.ToBlock)
}

func (s *SyncerTestSuite) TestInitAtTipSchedulesNothing() {
	s.progress.current = &Progress{BlockHash: "0xtip", BlockNumber: 480, Synced: true}

	err := s.syncer.init()
	s.Require().NoError(err)

	s.Empty(s.scheduler.scheduled())

	// Every enrolled model is immediately complete
	s.True(s.syncer.SyncComplete("m1"))
	s.True(s.syncer.SyncComplete("m2"))
}

func (s *SyncerTestSuite) TestInitialBackfillGatesEnrolledModels() {
	s.Require().NoError(s.syncer.init())

	s.False(s.syncer.SyncComplete("m1"))
	s.False(s.syncer.SyncComplete("m2"))

	// Unknown models have no outstanding work
	s.True(s.syncer.SyncComplete("other"))
}

// History jobs left over from a previous run keep gating their models after
// a restart, even when no new catch up work gets scheduled
func (s *SyncerTestSuite) TestInitRestoresCountersFromUnfinishedJobs() {
	s.progress.current = &Progress{BlockHash: "0xtip", BlockNumber: 480, Synced: true}

	created := s.unfinishedJob("restart-1", model.JobStateCreated, &JobRequest{
		JobType:   JobKindCatchup,
		FromBlock: 0,
		ToBlock:   400,
		Models:    []string{"mx"},
	})
	active := s.unfinishedJob("restart-2", model.JobStateActive, &JobRequest{
		JobType:   JobKindFull,
		FromBlock: 200,
		ToBlock:   300,
		Models:    []string{"my"},
	})
	s.scheduler.byState[model.JobStateCreated] = map[string][]*model.Job{QueueHistorySync: {created}}
	s.scheduler.byState[model.JobStateActive] = map[string][]*model.Job{QueueHistorySync: {active}}

	s.Require().NoError(s.syncer.init())
	s.Empty(s.scheduler.scheduled())

	s.False(s.syncer.SyncComplete("mx"))
	s.False(s.syncer.SyncComplete("my"))
	// Models without surviving jobs stay unaffected
	s.True(s.syncer.SyncComplete("m1"))

	// The reruns finishing release their models
	s.syncer.OnJobDone(QueueHistorySync, created, nil)
	s.True(s.syncer.SyncComplete("mx"))
	s.syncer.OnJobDone(QueueHistorySync, active, nil)
	s.True(s.syncer.SyncComplete("my"))
}

func (s *SyncerTestSuite) TestInitFailsWithoutChain() {
	s.chain.err = errors.New("connection refused")

	err := s.syncer.init()
	s.Error(err)
	s.Empty(s.scheduler.scheduled())
}

func (s *SyncerTestSuite) TestBlockEventSchedulesContinuousSync() {
	s.initAtTip()

	s.syncer.handleBlockEvent(&listener.BlockEvent{Number: 481, Hash: "0xh481", ParentHash: "0xtip"})

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(QueueContinuousSync, jobs[0].Queue)
	s.Equal(JobKindContinuous, jobs[0].Request.JobType)
	s.Equal(int64(481), jobs[0].Request.FromBlock)
	s.Equal(int64(481), jobs[0].Request.ToBlock)
	s.Equal([]string{"m1", "m2"}, jobs[0].Request.Models)

	last := s.progress.lastSave()
	s.Require().NotNil(last)
	s.Equal(int64(481), last.BlockNumber)
	s.Equal("0xh481", last.BlockHash)

	s.Equal(int64(481), s.syncer.currentBlock.Load())

	// Continuous work never gates queries
	s.True(s.syncer.SyncComplete("m1"))
}

func (s *SyncerTestSuite) TestReorgSchedulesRecoverySync() {
	s.initAtTip()

	s.syncer.handleBlockEvent(&listener.BlockEvent{
		Number:             500,
		Hash:               "0xh500b",
		ParentHash:         "0xh499b",
		Reorganized:        true,
		ExpectedParentHash: "0xh499",
	})

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(QueueHistorySync, jobs[0].Queue)
	s.Equal(JobKindCatchup, jobs[0].Request.JobType)
	s.Equal(int64(480), jobs[0].Request.FromBlock)
	s.Equal(int64(500), jobs[0].Request.ToBlock)

	// Recovery is historical work, queries get gated again
	s.False(s.syncer.SyncComplete("m1"))
	s.False(s.syncer.SyncComplete("m2"))

	last := s.progress.lastSave()
	s.Require().NotNil(last)
	s.Equal(int64(500), last.BlockNumber)
}

func (s *SyncerTestSuite) TestReorgNearGenesisClampsToZero() {
	s.initAtTip()

	s.syncer.handleBlockEvent(&listener.BlockEvent{Number: 5, Hash: "0xh5b", Reorganized: true})

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(int64(0), jobs[0].Request.FromBlock)
	s.Equal(int64(5), jobs[0].Request.ToBlock)
}

func (s *SyncerTestSuite) TestSchedulingErrorStillSavesProgress() {
	s.initAtTip()
	s.scheduler.failWith = errors.New("database is down")

	s.syncer.handleBlockEvent(&listener.BlockEvent{Number: 482, Hash: "0xh482", Reorganized: true})

	// The failed job never made it in, so it can't gate queries
	s.True(s.syncer.SyncComplete("m1"))

	last := s.progress.lastSave()
	s.Require().NotNil(last)
	s.Equal(int64(482), last.BlockNumber)
	s.Equal("0xh482", last.BlockHash)
	s.Equal(int64(482), s.syncer.currentBlock.Load())
}

func (s *SyncerTestSuite) TestStartModelSyncNormalizesModels() {
	s.initAtTip()

	err := s.syncer.StartModelSync(s.ctx, 3, 9, "m9", "m3", "m9")
	s.Require().NoError(err)

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal(QueueHistorySync, jobs[0].Queue)
	s.Equal(JobKindCatchup, jobs[0].Request.JobType)
	s.Equal(int64(3), jobs[0].Request.FromBlock)
	s.Equal(int64(9), jobs[0].Request.ToBlock)
	s.Equal([]string{"m3", "m9"}, jobs[0].Request.Models)

	s.Contains(s.syncer.SyncedModels(), "m3")
	s.Contains(s.syncer.SyncedModels(), "m9")
	s.False(s.syncer.SyncComplete("m9"))
}

func (s *SyncerTestSuite) TestStartModelSyncSingleModel() {
	s.initAtTip()

	err := s.syncer.StartModelSync(s.ctx, 0, 480, "solo")
	s.Require().NoError(err)

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 1)
	s.Equal([]string{"solo"}, jobs[0].Request.Models)
}

func (s *SyncerTestSuite) TestStartModelSyncWithoutModelsIsNoOp() {
	s.initAtTip()

	err := s.syncer.StartModelSync(s.ctx, 0, 480)
	s.NoError(err)
	s.Empty(s.scheduler.scheduled())
}

func (s *SyncerTestSuite) TestStopModelSync() {
	s.initAtTip()

	s.syncer.StopModelSync("m1")
	s.Equal([]string{"m2"}, s.syncer.SyncedModels())

	// Removing an absent model changes nothing
	s.syncer.StopModelSync("ghost")
	s.Equal([]string{"m2"}, s.syncer.SyncedModels())
}

func (s *SyncerTestSuite) TestOnJobDoneReleasesModels() {
	s.initAtTip()

	// Two overlapping backfills over m1
	s.Require().NoError(s.syncer.StartModelSync(s.ctx, 0, 100, "m1"))
	s.Require().NoError(s.syncer.StartModelSync(s.ctx, 100, 200, "m1"))
	s.False(s.syncer.SyncComplete("m1"))

	jobs := s.scheduler.scheduled()
	s.Require().Len(jobs, 2)

	s.syncer.OnJobDone(QueueHistorySync, s.terminalJob(jobs[0].Request), nil)
	s.False(s.syncer.SyncComplete("m1"))

	s.syncer.OnJobDone(QueueHistorySync, s.terminalJob(jobs[1].Request), nil)
	s.True(s.syncer.SyncComplete("m1"))
}

func (s *SyncerTestSuite) TestOnJobDoneFailureStillReleases() {
	s.initAtTip()

	s.Require().NoError(s.syncer.StartModelSync(s.ctx, 0, 100, "m1"))
	s.False(s.syncer.SyncComplete("m1"))

	job := s.terminalJob(s.scheduler.scheduled()[0].Request)
	s.syncer.OnJobDone(QueueHistorySync, job, errors.New("range kept failing"))

	// A permanently failed backfill must not gate queries forever
	s.True(s.syncer.SyncComplete("m1"))
}

func (s *SyncerTestSuite) TestOnJobDoneIgnoresOtherQueues() {
	s.initAtTip()

	s.Require().NoError(s.syncer.StartModelSync(s.ctx, 0, 100, "m1"))
	job := s.terminalJob(s.scheduler.scheduled()[0].Request)

	s.syncer.OnJobDone(QueueContinuousSync, job, nil)
	s.False(s.syncer.SyncComplete("m1"))

	s.syncer.OnJobDone(QueueRebuildAnchors, job, nil)
	s.False(s.syncer.SyncComplete("m1"))
}

func (s *SyncerTestSuite) TestOnJobDoneFloorsAtZero() {
	s.initAtTip()

	job := s.terminalJob(&JobRequest{JobType: JobKindCatchup, FromBlock: 0, ToBlock: 10, Models: []string{"mx"}})
	s.syncer.OnJobDone(QueueHistorySync, job, nil)
	s.syncer.OnJobDone(QueueHistorySync, job, nil)

	s.True(s.syncer.SyncComplete("mx"))
}

func (s *SyncerTestSuite) TestEventHandlingIsDeterministic() {
	events := []*listener.BlockEvent{
		{Number: 481, Hash: "0xh481"},
		{Number: 482, Hash: "0xh482"},
		{Number: 500, Hash: "0xh500b", Reorganized: true, ExpectedParentHash: "0xh499"},
		{Number: 501, Hash: "0xh501"},
	}

	runOnce := func() []*scheduledJob {
		s.SetupTest()
		s.initAtTip()
		for _, event := range events {
			s.syncer.handleBlockEvent(event)
		}
		return s.scheduler.scheduled()
	}

	first := runOnce()
	second := runOnce()
	s.Equal(first, second)
}

func (s *SyncerTestSuite) terminalJob(request *JobRequest) *model.Job {
	buf, err := json.Marshal(request)
	s.Require().NoError(err)

	job := &model.Job{
		Id:        "terminal",
		Queue:     QueueHistorySync,
		State:     model.JobStateCompleted,
		CreatedOn: time.Now(),
	}
	s.Require().NoError(job.Data.Set(buf))
	return job
}

func (s *SyncerTestSuite) unfinishedJob(id string, state model.JobState, request *JobRequest) *model.Job {
	buf, err := json.Marshal(request)
	s.Require().NoError(err)

	job := &model.Job{
		Id:        id,
		Queue:     QueueHistorySync,
		State:     state,
		CreatedOn: time.Now(),
	}
	s.Require().NoError(job.Data.Set(buf))
	return job
}
