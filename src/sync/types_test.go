package sync

import (
	"encoding/json"
	"testing"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"

	"github.com/stretchr/testify/suite"
)

func TestTypesTestSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

type TypesTestSuite struct {
	suite.Suite
}

func (s *TypesTestSuite) TestJobRequestWireFormat() {
	buf, err := json.Marshal(&JobRequest{
		JobType:   JobKindCatchup,
		FromBlock: 5,
		ToBlock:   10,
		Models:    []string{"m1"},
	})
	s.Require().NoError(err)

	// The cursor stays off the wire until the worker sets it
	s.JSONEq(`{"jobType":"catchup","fromBlock":5,"toBlock":10,"models":["m1"]}`, string(buf))

	cursor := int64(7)
	buf, err = json.Marshal(&JobRequest{
		JobType:      JobKindContinuous,
		FromBlock:    7,
		ToBlock:      7,
		Models:       []string{"m1"},
		CurrentBlock: &cursor,
	})
	s.Require().NoError(err)
	s.Contains(string(buf), `"currentBlock":7`)
	s.Contains(string(buf), `"jobType":"continuous"`)
}

func (s *TypesTestSuite) TestParseJobRequest() {
	in := &JobRequest{
		JobType:   JobKindFull,
		FromBlock: 0,
		ToBlock:   480,
		Models:    []string{"m1", "m2"},
	}
	buf, err := json.Marshal(in)
	s.Require().NoError(err)

	job := &model.Job{Id: "x", Queue: QueueRebuildAnchors}
	s.Require().NoError(job.Data.Set(buf))

	out, err := ParseJobRequest(job)
	s.Require().NoError(err)
	s.Equal(in, out)
}

func (s *TypesTestSuite) TestParseJobRequestWithoutData() {
	out, err := ParseJobRequest(&model.Job{Id: "empty"})
	s.Error(err)
	s.NotNil(out)
}

func (s *TypesTestSuite) TestBlockEventMessageMarshalBinary() {
	buf, err := (&BlockEventMessage{
		Network:     "eip155:1",
		BlockHash:   "0xabc",
		BlockNumber: 481,
		Reorganized: false,
		Timestamp:   1700000000,
	}).MarshalBinary()
	s.Require().NoError(err)

	s.Contains(string(buf), `"network":"eip155:1"`)
	s.Contains(string(buf), `"blockNumber":481`)
}
