package queue

import (
	"context"
	"encoding/json"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// One execution of a claimed job, passed to the handler.
type JobRun struct {
	Job *model.Job

	db *gorm.DB
}

// Persists the job's request payload mid flight. Long running handlers use
// this to advance their progress cursor, so a rerun after a crash picks up
// close to where the work stopped.
func (self *JobRun) SaveData(ctx context.Context, v any) (err error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}

	data := pgtype.JSONB{}
	err = data.Set(buf)
	if err != nil {
		return
	}

	err = self.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ?", self.Job.Id).
		Update("data", data).
		Error
	if err != nil {
		return
	}

	self.Job.Data = data
	return
}
