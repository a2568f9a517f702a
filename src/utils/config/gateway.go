package config

import (
	"github.com/spf13/viper"
)

type Gateway struct {
	// REST API address. Serves sync status, model administration and anchor queries.
	RESTListenAddress string

	// Num of anchors returned when the query doesn't specify a limit
	DefaultPageSize int

	// Max num of anchors returned in one response
	MaxPageSize int
}

func setGatewayDefaults() {
	viper.SetDefault("Gateway.RESTListenAddress", "0.0.0.0:4000")
	viper.SetDefault("Gateway.DefaultPageSize", "20")
	viper.SetDefault("Gateway.MaxPageSize", "100")
}
