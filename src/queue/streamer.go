package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"github.com/jackc/pgx"
)

// Streams queue names from the Postgres channel the jobs insert trigger
// notifies on. Lets the dispatcher react to inserts between polling rounds.
type Streamer struct {
	*task.Task

	pool       *pgx.ConnPool
	connection *pgx.Conn

	monitor monitoring.Monitor

	channelName string

	Output chan string
}

func NewStreamer(config *config.Config) (self *Streamer) {
	self = new(Streamer)

	self.channelName = config.Queue.NotifyChannel

	self.Output = make(chan string, 1)

	self.Task = task.NewTask(config, "streamer").
		WithSubtaskFunc(self.run).
		WithOnBeforeStart(self.connect).
		WithOnAfterStop(self.disconnect).
		WithOnAfterStop(func() {
			close(self.Output)
		})

	return
}

func (self *Streamer) WithMonitor(monitor monitoring.Monitor) *Streamer {
	self.monitor = monitor
	return self
}

func (self *Streamer) disconnect() {
	err := self.connection.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close connection")
	}

	self.pool.Close()
}

func (self *Streamer) connect() (err error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		self.Config.Database.Host,
		self.Config.Database.Port,
		self.Config.Database.User,
		self.Config.Database.Password,
		self.Config.Database.Name,
		self.Config.Database.SslMode)

	config, err := pgx.ParseDSN(dsn)
	if err != nil {
		return
	}

	self.pool, err = pgx.NewConnPool(pgx.ConnPoolConfig{ConnConfig: config})
	if err != nil {
		return
	}

	self.connection, err = self.pool.Acquire()
	if err != nil {
		return
	}

	return
}

func (self *Streamer) run() (err error) {
	err = self.connection.Listen(self.channelName)
	if err != nil {
		return
	}

	defer func() {
		err := self.connection.Unlisten(self.channelName)
		if err != nil {
			self.Log.WithError(err).Error("Failed to unlisten channel")
		}
	}()

	for {
		// Waits for a notification unless the task gets stopped
		msg, err := self.connection.WaitForNotification(self.Ctx)
		if errors.Is(err, context.Canceled) {
			// Stop() was called
			return nil
		}

		if err != nil {
			self.Log.WithError(err).Error("Failed to wait for notification")
			self.monitor.GetReport().Queue.Errors.ListenFailures.Inc()

			// Avoid spinning on a broken connection
			time.Sleep(time.Second)
			if self.IsStopping.Load() {
				return nil
			}
			continue
		}

		select {
		case <-self.StopChannel:
			return nil
		case self.Output <- msg.Payload:
		}
	}
}
