package eth

import (
	"context"
	"math/big"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Points to one block in the chain
type BlockPtr struct {
	Number     int64
	Hash       string
	ParentHash string
}

type NetworkInfo struct {
	ChainId uint64
}

// One anchor event picked up from the chain, proof payload comes separately
type AnchorLog struct {
	TxHash      string
	LogIndex    uint
	BlockNumber int64
	BlockHash   string
	Root        string
	Data        []byte
}

// Thin wrapper around the JSON-RPC client, scoped to what syncing needs
type Client struct {
	config *config.Config
	log    *logrus.Entry

	client *ethclient.Client

	// Nil means logs are matched by topic only
	contract *common.Address

	// First topic of the anchor event
	topic common.Hash
}

func NewClient(config *config.Config) (self *Client, err error) {
	self = new(Client)
	self.log = logger.NewSublogger("eth-client")
	self.config = config

	self.client, err = ethclient.Dial(config.Ethereum.RpcUrl)
	if err != nil {
		return
	}

	if config.Ethereum.AnchorContractAddress != "" {
		address := common.HexToAddress(config.Ethereum.AnchorContractAddress)
		self.contract = &address
	}

	self.topic = crypto.Keccak256Hash([]byte(config.Ethereum.AnchorEventSignature))

	return
}

func (self *Client) Close() {
	self.client.Close()
}

// Gets the block at the given offset from the head, offset is zero or negative
func (self *Client) GetBlock(ctx context.Context, offset int64) (out *BlockPtr, err error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.Ethereum.RequestTimeout)
	defer cancel()

	head, err := self.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return
	}

	if offset == 0 {
		out = headerToPtr(head)
		return
	}

	number := head.Number.Int64() + offset
	if number < 0 {
		number = 0
	}

	return self.getBlockByNumber(ctx, number)
}

func (self *Client) GetBlockByNumber(ctx context.Context, number int64) (out *BlockPtr, err error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.Ethereum.RequestTimeout)
	defer cancel()

	return self.getBlockByNumber(ctx, number)
}

func (self *Client) getBlockByNumber(ctx context.Context, number int64) (out *BlockPtr, err error) {
	header, err := self.client.HeaderByNumber(ctx, big.NewInt(number))
	if err != nil {
		return
	}

	out = headerToPtr(header)
	return
}

func (self *Client) GetNetwork(ctx context.Context) (out *NetworkInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.Ethereum.RequestTimeout)
	defer cancel()

	chainId, err := self.client.ChainID(ctx)
	if err != nil {
		return
	}

	out = &NetworkInfo{ChainId: chainId.Uint64()}
	return
}

// Downloads anchor events from the inclusive block range
func (self *Client) FilterAnchorLogs(ctx context.Context, from, to int64) (out []*AnchorLog, err error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.Ethereum.RequestTimeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   big.NewInt(to),
		Topics:    [][]common.Hash{{self.topic}},
	}
	if self.contract != nil {
		query.Addresses = []common.Address{*self.contract}
	}

	logs, err := self.client.FilterLogs(ctx, query)
	if err != nil {
		return
	}

	out = make([]*AnchorLog, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		out = append(out, &AnchorLog{
			TxHash:      l.TxHash.Hex(),
			LogIndex:    l.Index,
			BlockNumber: int64(l.BlockNumber),
			BlockHash:   l.BlockHash.Hex(),
			Root:        rootFromData(l.Data),
			Data:        l.Data,
		})
	}
	return
}

// Merkle root is the last word of the event payload,
// works both with the indexed and the non indexed service address
func rootFromData(data []byte) string {
	if len(data) < 32 {
		return hexutil.Encode(data)
	}
	return hexutil.Encode(data[len(data)-32:])
}

func headerToPtr(header *types.Header) *BlockPtr {
	return &BlockPtr{
		Number:     header.Number.Int64(),
		Hash:       header.Hash().Hex(),
		ParentHash: header.ParentHash.Hex(),
	}
}
