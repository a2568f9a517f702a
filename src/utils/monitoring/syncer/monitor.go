package monitor_syncer

import (
	"math"
	"net/http"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring/report"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report report.Report

	historySize int

	collector *Collector

	// Block processing speed
	BlockNumbers *deque.Deque[int64]
}

func NewMonitor() (self *Monitor) {
	self = new(Monitor)

	self.Report = report.Report{
		Run:            &report.RunReport{},
		Syncer:         &report.SyncerReport{},
		Queue:          &report.QueueReport{},
		Listener:       &report.ListenerReport{},
		RedisPublisher: &report.RedisPublisherReport{},
	}

	// Initialization
	self.Report.Run.State.StartTimestamp.Store(time.Now().Unix())

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(nil, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorBlocks)
	return
}

func (self *Monitor) Clear() {
	self.BlockNumbers.Clear()
}

func (self *Monitor) GetReport() *report.Report {
	return &self.Report
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.historySize = maxHistorySize

	self.BlockNumbers = deque.New[int64](self.historySize)

	return self
}

func (self *Monitor) GetPrometheusCollector() (collector prometheus.Collector) {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Measure block processing speed
func (self *Monitor) monitorBlocks() (err error) {
	loaded := self.Report.Syncer.State.CurrentBlock.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	self.BlockNumbers.PushBack(loaded)
	if self.BlockNumbers.Len() > self.historySize {
		self.BlockNumbers.PopFront()
	}
	value := float64(self.BlockNumbers.Back()-self.BlockNumbers.Front()) / float64(self.BlockNumbers.Len())

	self.Report.Syncer.State.AverageBlocksProcessedPerMinute.Store(round(value))
	return
}

func (self *Monitor) IsOK() bool {
	now := time.Now().Unix()
	if now-self.Report.Run.State.StartTimestamp.Load() < 300 {
		return true
	}

	// Syncer is operational long enough, check stats
	return self.Report.Syncer.State.AverageBlocksProcessedPerMinute.Load() > 0.1
}

func (self *Monitor) OnGetState(c *gin.Context) {
	// Fill data
	self.Report.Run.State.UpForSeconds.Store(uint64(time.Now().Unix() - self.Report.Run.State.StartTimestamp.Load()))

	c.JSON(http.StatusOK, &self.Report)
}

func (self *Monitor) OnGetHealth(c *gin.Context) {
	if self.IsOK() {
		c.Status(http.StatusOK)
	} else {
		c.Status(http.StatusServiceUnavailable)
	}
}
