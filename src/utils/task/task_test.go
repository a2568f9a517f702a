package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"

	"go.uber.org/atomic"

	"github.com/stretchr/testify/suite"
)

func TestTaskTestSuite(t *testing.T) {
	suite.Run(t, new(TaskTestSuite))
}

type TaskTestSuite struct {
	suite.Suite
	config *config.Config
}

func (s *TaskTestSuite) SetupSuite() {
	s.config = config.Default()
	s.config.StopTimeout = 5 * time.Second
}

// Subtask func that keeps the task alive until it gets stopped
func blockUntilStopped(t *Task) func() error {
	return func() error {
		<-t.StopChannel
		return nil
	}
}

func (s *TaskTestSuite) TestStopCascadesToSubtasks() {
	child := NewTask(s.config, "child")
	child.WithSubtaskFunc(blockUntilStopped(child))

	parent := NewTask(s.config, "parent").
		WithSubtask(child)
	parent.WithSubtaskFunc(blockUntilStopped(parent))

	s.Require().NoError(parent.Start())
	s.NoError(parent.Ctx.Err())
	s.NoError(child.Ctx.Err())

	parent.StopWait()

	s.True(parent.IsStopping.Load())
	s.True(child.IsStopping.Load())
	s.ErrorIs(parent.Ctx.Err(), context.Canceled)
	s.ErrorIs(child.Ctx.Err(), context.Canceled)

	// Nothing runs anymore in either task
	s.ErrorIs(parent.CtxRunning.Err(), context.Canceled)
	s.ErrorIs(child.CtxRunning.Err(), context.Canceled)
}

func (s *TaskTestSuite) TestStopHookOrdering() {
	var mtx sync.Mutex
	var order []string
	record := func(step string) {
		mtx.Lock()
		order = append(order, step)
		mtx.Unlock()
	}

	// The stop hooks run inside Stop() before the subtask gets to wind
	// down, the gate keeps the recording order deterministic
	gate := make(chan struct{})

	task := NewTask(s.config, "hooks")
	task.WithSubtaskFunc(func() error {
		<-task.StopChannel
		<-gate
		record("subtask")
		return nil
	}).
		WithOnStop(func() {
			record("on-stop")
			close(gate)
		}).
		WithOnAfterStop(func() { record("on-after-stop") })

	s.Require().NoError(task.Start())
	task.StopWait()

	mtx.Lock()
	defer mtx.Unlock()
	s.Equal([]string{"on-stop", "subtask", "on-after-stop"}, order)
}

func (s *TaskTestSuite) TestOnBeforeStartErrorAbortsStart() {
	initErr := errors.New("init failed")
	started := atomic.NewBool(false)

	task := NewTask(s.config, "aborted").
		WithOnBeforeStart(func() error { return initErr }).
		WithSubtaskFunc(func() error {
			started.Store(true)
			return nil
		})

	s.ErrorIs(task.Start(), initErr)
	s.False(started.Load())
}

func (s *TaskTestSuite) TestPeriodicSubtaskRepeats() {
	runs := atomic.NewInt64(0)

	task := NewTask(s.config, "periodic")
	task.WithPeriodicSubtaskFunc(10*time.Millisecond, func() error {
		runs.Inc()
		return nil
	})

	s.Require().NoError(task.Start())
	s.Eventually(func() bool { return runs.Load() >= 3 }, 3*time.Second, 5*time.Millisecond)

	task.StopWait()
	s.ErrorIs(task.CtxRunning.Err(), context.Canceled)
}

func (s *TaskTestSuite) TestCronSubtaskFires() {
	fired := make(chan struct{}, 1)

	task := NewTask(s.config, "cron")
	task.WithCronSubtaskFunc("* * * * * *", func() error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})

	s.Require().NoError(task.Start())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		s.FailNow("cron subtask never fired")
	}

	task.StopWait()
	s.ErrorIs(task.CtxRunning.Err(), context.Canceled)
}

func (s *TaskTestSuite) TestCronSubtaskRejectsBadSpec() {
	task := NewTask(s.config, "bad-cron")
	task.WithCronSubtaskFunc("not a cron spec", func() error { return nil })

	// The bad spec surfaces when the subtask runs, the task still winds
	// down cleanly
	s.Require().NoError(task.Start())
	task.StopWait()
	s.ErrorIs(task.CtxRunning.Err(), context.Canceled)
}

func (s *TaskTestSuite) TestWorkerPoolRunsSubmissions() {
	done := make(chan struct{})

	task := NewTask(s.config, "workers").
		WithWorkerPool(1, 10)
	task.WithSubtaskFunc(blockUntilStopped(task))

	s.Require().NoError(task.Start())
	task.SubmitToWorker(func() { close(done) })

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		s.FailNow("worker submission never ran")
	}

	task.StopWait()
	s.ErrorIs(task.CtxRunning.Err(), context.Canceled)
}

func (s *TaskTestSuite) TestStopIsIdempotent() {
	task := NewTask(s.config, "idempotent")
	task.WithSubtaskFunc(blockUntilStopped(task))

	s.Require().NoError(task.Start())

	task.Stop()
	task.Stop()
	task.StopWait()
	s.ErrorIs(task.CtxRunning.Err(), context.Canceled)
}
