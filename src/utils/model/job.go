package model

import (
	"database/sql"
	"time"

	"github.com/jackc/pgtype"
)

type JobState string

const (
	// Inserted, waits for a free worker
	JobStateCreated JobState = "created"

	// Claimed by a dispatcher, handler is running
	JobStateActive JobState = "active"

	// Handler finished without an error
	JobStateCompleted JobState = "completed"

	// Handler kept failing, no retries left
	JobStateFailed JobState = "failed"
)

type Job struct {
	// Random id assigned upon creation
	Id string `gorm:"primaryKey"`

	// Name of the queue the job belongs to
	Queue string

	State JobState

	// Request the job was created with, updated by the handler as it progresses
	Data pgtype.JSONB `gorm:"type:jsonb"`

	// Num of times the job got claimed, the first run doesn't count
	RetryCount int

	// Message of the last handler error
	LastError sql.NullString

	CreatedOn time.Time

	// When the job last became active
	StartedOn sql.NullTime

	// When the job reached a terminal state
	CompletedOn sql.NullTime

	// Created jobs aren't claimed before this passes
	RetryAfter sql.NullTime
}

func (Job) TableName() string {
	return "jobs"
}
