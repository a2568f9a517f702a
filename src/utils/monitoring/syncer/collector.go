package monitor_syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	StartTimestamp                  *prometheus.Desc
	UpForSeconds                    *prometheus.Desc
	StartBlock                      *prometheus.Desc
	CurrentBlock                    *prometheus.Desc
	ModelsSyncing                   *prometheus.Desc
	PendingHistorySyncs             *prometheus.Desc
	AverageBlocksProcessedPerMinute *prometheus.Desc
	BlockEventsProcessed            *prometheus.Desc
	ReorgsProcessed                 *prometheus.Desc
	AnchorsDiscovered               *prometheus.Desc
	AnchorsSaved                    *prometheus.Desc
	BlockRangesSynced               *prometheus.Desc
	ChainHeight                     *prometheus.Desc
	ConfirmedHeight                 *prometheus.Desc
	BlocksEmitted                   *prometheus.Desc
	ReorgsSpotted                   *prometheus.Desc
	JobsAdded                       *prometheus.Desc
	JobsCompleted                   *prometheus.Desc
	JobsRetried                     *prometheus.Desc
	JobsFailed                      *prometheus.Desc
	JobsStalled                     *prometheus.Desc
	JobsActive                      *prometheus.Desc
	MessagesPublished               *prometheus.Desc

	ProgressSaveFailures   *prometheus.Desc
	ScheduleFailures       *prometheus.Desc
	HistorySyncFailures    *prometheus.Desc
	ContinuousSyncFailures *prometheus.Desc
	ProofDownloadFailures  *prometheus.Desc
	AnchorInsertFailures   *prometheus.Desc
	LogFilterFailures      *prometheus.Desc
	HeadDownloadErrors     *prometheus.Desc
	BlockDownloadErrors    *prometheus.Desc
	DbClaimFailures        *prometheus.Desc
	DbUpdateFailures       *prometheus.Desc
	ListenFailures         *prometheus.Desc
	PublishFailures        *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "anchor-syncer",
	}

	return &Collector{
		StartTimestamp:                  prometheus.NewDesc("start_timestamp", "", nil, labels),
		UpForSeconds:                    prometheus.NewDesc("up_for_seconds", "", nil, labels),
		StartBlock:                      prometheus.NewDesc("syncer_start_block", "", nil, labels),
		CurrentBlock:                    prometheus.NewDesc("syncer_current_block", "", nil, labels),
		ModelsSyncing:                   prometheus.NewDesc("models_syncing", "", nil, labels),
		PendingHistorySyncs:             prometheus.NewDesc("pending_history_syncs", "", nil, labels),
		AverageBlocksProcessedPerMinute: prometheus.NewDesc("average_blocks_processed_per_minute", "", nil, labels),
		BlockEventsProcessed:            prometheus.NewDesc("block_events_processed", "", nil, labels),
		ReorgsProcessed:                 prometheus.NewDesc("reorgs_processed", "", nil, labels),
		AnchorsDiscovered:               prometheus.NewDesc("anchors_discovered", "", nil, labels),
		AnchorsSaved:                    prometheus.NewDesc("anchors_saved", "", nil, labels),
		BlockRangesSynced:               prometheus.NewDesc("block_ranges_synced", "", nil, labels),
		ChainHeight:                     prometheus.NewDesc("chain_height", "", nil, labels),
		ConfirmedHeight:                 prometheus.NewDesc("confirmed_height", "", nil, labels),
		BlocksEmitted:                   prometheus.NewDesc("blocks_emitted", "", nil, labels),
		ReorgsSpotted:                   prometheus.NewDesc("reorgs_spotted", "", nil, labels),
		JobsAdded:                       prometheus.NewDesc("jobs_added", "", nil, labels),
		JobsCompleted:                   prometheus.NewDesc("jobs_completed", "", nil, labels),
		JobsRetried:                     prometheus.NewDesc("jobs_retried", "", nil, labels),
		JobsFailed:                      prometheus.NewDesc("jobs_failed", "", nil, labels),
		JobsStalled:                     prometheus.NewDesc("jobs_stalled", "", nil, labels),
		JobsActive:                      prometheus.NewDesc("jobs_active", "", nil, labels),
		MessagesPublished:               prometheus.NewDesc("messages_published", "", nil, labels),

		// Errors
		ProgressSaveFailures:   prometheus.NewDesc("error_progress_save", "", nil, labels),
		ScheduleFailures:       prometheus.NewDesc("error_schedule", "", nil, labels),
		HistorySyncFailures:    prometheus.NewDesc("error_history_sync", "", nil, labels),
		ContinuousSyncFailures: prometheus.NewDesc("error_continuous_sync", "", nil, labels),
		ProofDownloadFailures:  prometheus.NewDesc("error_proof_download", "", nil, labels),
		AnchorInsertFailures:   prometheus.NewDesc("error_anchor_insert", "", nil, labels),
		LogFilterFailures:      prometheus.NewDesc("error_log_filter", "", nil, labels),
		HeadDownloadErrors:     prometheus.NewDesc("error_head_download", "", nil, labels),
		BlockDownloadErrors:    prometheus.NewDesc("error_block_download", "", nil, labels),
		DbClaimFailures:        prometheus.NewDesc("error_db_claim", "", nil, labels),
		DbUpdateFailures:       prometheus.NewDesc("error_db_update", "", nil, labels),
		ListenFailures:         prometheus.NewDesc("error_listen", "", nil, labels),
		PublishFailures:        prometheus.NewDesc("error_publish", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.StartTimestamp
	ch <- self.UpForSeconds
	ch <- self.StartBlock
	ch <- self.CurrentBlock
	ch <- self.ModelsSyncing
	ch <- self.PendingHistorySyncs
	ch <- self.AverageBlocksProcessedPerMinute
	ch <- self.BlockEventsProcessed
	ch <- self.ReorgsProcessed
	ch <- self.AnchorsDiscovered
	ch <- self.AnchorsSaved
	ch <- self.BlockRangesSynced
	ch <- self.ChainHeight
	ch <- self.ConfirmedHeight
	ch <- self.BlocksEmitted
	ch <- self.ReorgsSpotted
	ch <- self.JobsAdded
	ch <- self.JobsCompleted
	ch <- self.JobsRetried
	ch <- self.JobsFailed
	ch <- self.JobsStalled
	ch <- self.JobsActive
	ch <- self.MessagesPublished

	// Errors
	ch <- self.ProgressSaveFailures
	ch <- self.ScheduleFailures
	ch <- self.HistorySyncFailures
	ch <- self.ContinuousSyncFailures
	ch <- self.ProofDownloadFailures
	ch <- self.AnchorInsertFailures
	ch <- self.LogFilterFailures
	ch <- self.HeadDownloadErrors
	ch <- self.BlockDownloadErrors
	ch <- self.DbClaimFailures
	ch <- self.DbUpdateFailures
	ch <- self.ListenFailures
	ch <- self.PublishFailures
}

// Collect implements required collect function for all promehteus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(self.StartTimestamp, prometheus.GaugeValue, float64(self.monitor.Report.Run.State.StartTimestamp.Load()))
	ch <- prometheus.MustNewConstMetric(self.UpForSeconds, prometheus.GaugeValue, float64(self.monitor.Report.Run.State.UpForSeconds.Load()))
	ch <- prometheus.MustNewConstMetric(self.StartBlock, prometheus.GaugeValue, float64(self.monitor.Report.Syncer.State.StartBlock.Load()))
	ch <- prometheus.MustNewConstMetric(self.CurrentBlock, prometheus.GaugeValue, float64(self.monitor.Report.Syncer.State.CurrentBlock.Load()))
	ch <- prometheus.MustNewConstMetric(self.ModelsSyncing, prometheus.GaugeValue, float64(self.monitor.Report.Syncer.State.ModelsSyncing.Load()))
	ch <- prometheus.MustNewConstMetric(self.PendingHistorySyncs, prometheus.GaugeValue, float64(self.monitor.Report.Syncer.State.PendingHistorySyncs.Load()))
	ch <- prometheus.MustNewConstMetric(self.AverageBlocksProcessedPerMinute, prometheus.GaugeValue, self.monitor.Report.Syncer.State.AverageBlocksProcessedPerMinute.Load())
	ch <- prometheus.MustNewConstMetric(self.BlockEventsProcessed, prometheus.CounterValue, float64(self.monitor.Report.Syncer.State.BlockEventsProcessed.Load()))
	ch <- prometheus.MustNewConstMetric(self.ReorgsProcessed, prometheus.CounterValue, float64(self.monitor.Report.Syncer.State.ReorgsProcessed.Load()))
	ch <- prometheus.MustNewConstMetric(self.AnchorsDiscovered, prometheus.CounterValue, float64(self.monitor.Report.Syncer.State.AnchorsDiscovered.Load()))
	ch <- prometheus.MustNewConstMetric(self.AnchorsSaved, prometheus.CounterValue, float64(self.monitor.Report.Syncer.State.AnchorsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlockRangesSynced, prometheus.CounterValue, float64(self.monitor.Report.Syncer.State.BlockRangesSynced.Load()))
	ch <- prometheus.MustNewConstMetric(self.ChainHeight, prometheus.GaugeValue, float64(self.monitor.Report.Listener.State.ChainHeight.Load()))
	ch <- prometheus.MustNewConstMetric(self.ConfirmedHeight, prometheus.GaugeValue, float64(self.monitor.Report.Listener.State.ConfirmedHeight.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlocksEmitted, prometheus.CounterValue, float64(self.monitor.Report.Listener.State.BlocksEmitted.Load()))
	ch <- prometheus.MustNewConstMetric(self.ReorgsSpotted, prometheus.CounterValue, float64(self.monitor.Report.Listener.State.ReorgsSpotted.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsAdded, prometheus.CounterValue, float64(self.monitor.Report.Queue.State.JobsAdded.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsCompleted, prometheus.CounterValue, float64(self.monitor.Report.Queue.State.JobsCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsRetried, prometheus.CounterValue, float64(self.monitor.Report.Queue.State.JobsRetried.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsFailed, prometheus.CounterValue, float64(self.monitor.Report.Queue.State.JobsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsStalled, prometheus.CounterValue, float64(self.monitor.Report.Queue.State.JobsStalled.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsActive, prometheus.GaugeValue, float64(self.monitor.Report.Queue.State.JobsActive.Load()))
	ch <- prometheus.MustNewConstMetric(self.MessagesPublished, prometheus.CounterValue, float64(self.monitor.Report.RedisPublisher.State.MessagesPublished.Load()))

	// Errors
	ch <- prometheus.MustNewConstMetric(self.ProgressSaveFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.ProgressSaveFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.ScheduleFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.ScheduleFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.HistorySyncFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.HistorySyncFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.ContinuousSyncFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.ContinuousSyncFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProofDownloadFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.ProofDownloadFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.AnchorInsertFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.AnchorInsertFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.LogFilterFailures, prometheus.CounterValue, float64(self.monitor.Report.Syncer.Errors.LogFilterFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.HeadDownloadErrors, prometheus.CounterValue, float64(self.monitor.Report.Listener.Errors.HeadDownloadErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlockDownloadErrors, prometheus.CounterValue, float64(self.monitor.Report.Listener.Errors.BlockDownloadErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.DbClaimFailures, prometheus.CounterValue, float64(self.monitor.Report.Queue.Errors.DbClaimFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.DbUpdateFailures, prometheus.CounterValue, float64(self.monitor.Report.Queue.Errors.DbUpdateFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.ListenFailures, prometheus.CounterValue, float64(self.monitor.Report.Queue.Errors.ListenFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishFailures, prometheus.CounterValue, float64(self.monitor.Report.RedisPublisher.Errors.Publish.Load()))
}
