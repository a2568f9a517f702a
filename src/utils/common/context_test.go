package common

import (
	"context"
	"testing"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"

	"github.com/stretchr/testify/suite"
)

func TestContextTestSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}

type ContextTestSuite struct {
	suite.Suite
}

func (s *ContextTestSuite) TestConfigRoundTrip() {
	conf := config.Default()
	ctx := SetConfig(context.Background(), conf)
	s.Same(conf, GetConfig(ctx))
}

func (s *ContextTestSuite) TestConfigMissing() {
	s.Nil(GetConfig(context.Background()))
}
