package response

import (
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
)

type Anchor struct {
	TxHash      string   `json:"txHash"`
	LogIndex    uint     `json:"logIndex"`
	BlockNumber int64    `json:"blockNumber"`
	BlockHash   string   `json:"blockHash"`
	Root        string   `json:"root"`
	Proof       []byte   `json:"proof,omitempty"`
	Models      []string `json:"models"`
}

type GetAnchors struct {
	Anchors []Anchor `json:"anchors"`
}

func AnchorsToResponse(anchors []*model.AnchorCommitment) *GetAnchors {
	out := make([]Anchor, len(anchors))
	for i, anchor := range anchors {
		out[i] = Anchor{
			TxHash:      anchor.TxHash,
			LogIndex:    anchor.LogIndex,
			BlockNumber: anchor.BlockNumber,
			BlockHash:   anchor.BlockHash,
			Root:        anchor.Root,
			Proof:       anchor.Proof,
			Models:      anchor.Models,
		}
	}

	return &GetAnchors{
		Anchors: out,
	}
}
