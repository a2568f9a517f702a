package common

import (
	"context"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
)

type contextKey int

const configContextKey contextKey = iota

// Attaches global configuration to the context
func SetConfig(ctx context.Context, config *config.Config) context.Context {
	return context.WithValue(ctx, configContextKey, config)
}

// Gets global configuration from the context, nil when not set
func GetConfig(ctx context.Context) (conf *config.Config) {
	conf, _ = ctx.Value(configContextKey).(*config.Config)
	return
}
