package cmd

import (
	"github.com/ceramicnetwork/anchor-syncer/src/queue"
	"github.com/ceramicnetwork/anchor-syncer/src/sync"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/common"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <model>...",
	Short: "Schedule anchor state of the given models to be dropped and synced again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("rebuild-cmd")

		db, err := model.NewConnection(applicationCtx, common.GetConfig(applicationCtx), "rebuild")
		if err != nil {
			return
		}
		defer func() {
			sqlDb, dbErr := db.DB()
			if dbErr == nil {
				sqlDb.Close()
			}
		}()

		// The job gets picked up by a running sync process
		job, err := queue.Enqueue(applicationCtx, db, sync.QueueRebuildAnchors, &sync.JobRequest{
			JobType: sync.JobKindFull,
			Models:  args,
		})
		if err != nil {
			return
		}

		log.WithField("id", job.Id).WithField("models", args).Info("Rebuild scheduled")
		return
	},
	PostRunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("root-cmd")
		log.Debug("Finished rebuild command")
		applicationCtxCancel()
		return
	},
}
