package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestDefaults() {
	config := Default()
	s.Require().NotNil(config)

	s.False(config.IsDevelopment)
	s.Equal(30*time.Second, config.StopTimeout)

	s.Equal(int64(20), config.Syncer.BlockConfirmations)
	s.Equal(10*time.Second, config.Syncer.PollInterval)
	s.Equal(int64(500), config.Syncer.FetchBatchSize)

	s.Equal(3, config.Queue.MaxWorkers)
	s.Equal(3, config.Queue.MaxRetries)
	s.Equal(15*time.Second, config.Queue.RetryBackoffInterval)
	s.Equal("jobs_inserted", config.Queue.NotifyChannel)

	s.Equal(uint16(5432), config.Database.Port)
	s.Equal("disable", config.Database.SslMode)

	s.False(config.Redis.Enabled)
	s.Equal(20, config.Gateway.DefaultPageSize)
	s.Equal(100, config.Gateway.MaxPageSize)
}

func (s *ConfigTestSuite) TestEnvOverride() {
	s.T().Setenv("SYNCER_SYNCER_BLOCK_CONFIRMATIONS", "7")
	s.T().Setenv("SYNCER_DATABASE_NAME", "ceramic_test")

	config, err := Load("")
	s.Require().NoError(err)

	s.Equal(int64(7), config.Syncer.BlockConfirmations)
	s.Equal("ceramic_test", config.Database.Name)
}

func (s *ConfigTestSuite) TestLoadFile() {
	file, err := os.CreateTemp(s.T().TempDir(), "config*.json")
	s.Require().NoError(err)

	_, err = file.WriteString(`{"syncer": {"blockConfirmations": 12}, "logLevel": "INFO"}`)
	s.Require().NoError(err)
	s.Require().NoError(file.Close())

	config, err := Load(file.Name())
	s.Require().NoError(err)

	s.Equal(int64(12), config.Syncer.BlockConfirmations)
	s.Equal("INFO", config.LogLevel)
}

func (s *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load("/nonexistent/config.json")
	s.Error(err)
}
