package task

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Implement operation retrying
type Retry struct {
	ctx                context.Context
	maxElapsedTime     time.Duration
	maxInterval        time.Duration
	acceptableDuration time.Duration
	onError            func(err error, isDurationAcceptable bool) error
}

func NewRetry() *Retry {
	return new(Retry)
}

func (self *Retry) WithMaxElapsedTime(maxElapsedTime time.Duration) *Retry {
	self.maxElapsedTime = maxElapsedTime
	return self
}

func (self *Retry) WithMaxInterval(maxInterval time.Duration) *Retry {
	self.maxInterval = maxInterval
	return self
}

// Errors coming in before this duration passes are considered part of normal operation
func (self *Retry) WithAcceptableDuration(acceptableDuration time.Duration) *Retry {
	self.acceptableDuration = acceptableDuration
	return self
}

func (self *Retry) WithContext(ctx context.Context) *Retry {
	self.ctx = ctx
	return self
}

// Callback may replace the error, wrapping it with backoff.Permanent stops retrying
func (self *Retry) WithOnError(v func(err error, isDurationAcceptable bool) error) *Retry {
	self.onError = v
	return self
}

func (self *Retry) Run(f func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = self.maxElapsedTime
	b.MaxInterval = self.maxInterval

	started := time.Now()
	operation := func() (err error) {
		err = f()
		if err == nil {
			return nil
		}
		if self.onError != nil {
			isDurationAcceptable := self.acceptableDuration <= 0 || time.Since(started) <= self.acceptableDuration
			err = self.onError(err, isDurationAcceptable)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, self.ctx))
}
