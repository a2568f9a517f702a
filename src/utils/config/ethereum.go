package config

import (
	"time"

	"github.com/spf13/viper"
)

type Ethereum struct {
	// JSON-RPC endpoint of the chain node
	RpcUrl string

	// Max time for a single RPC call
	RequestTimeout time.Duration

	// Address of the anchor contract, empty means logs are matched by topic only
	AnchorContractAddress string

	// Canonical signature of the anchor event, hashed into the filter topic
	AnchorEventSignature string
}

func setEthereumDefaults() {
	viper.SetDefault("Ethereum.RpcUrl", "http://127.0.0.1:8545")
	viper.SetDefault("Ethereum.RequestTimeout", "30s")
	viper.SetDefault("Ethereum.AnchorContractAddress", "")
	viper.SetDefault("Ethereum.AnchorEventSignature", "DidAnchor(address,bytes32)")
}
