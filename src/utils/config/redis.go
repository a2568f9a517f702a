package config

import (
	"github.com/spf13/viper"

	"time"
)

type Redis struct {
	// Is publishing block events to Redis on
	Enabled bool

	Port     uint16
	Host     string
	User     string
	Password string
	DB       int

	// Channel the block events get published to
	ChannelName string

	// TLS configuration, PEM encoded. Empty means a plaintext connection
	ClientCert string
	ClientKey  string
	CaCert     string

	// Connection configuration
	MinIdleConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// Publish backoff configuration, 0 is no limit
	MaxElapsedTime time.Duration
	MaxInterval    time.Duration

	// Num of workers that publish messages
	MaxWorkers int

	// Max num of requests in worker's queue
	MaxQueueSize int
}

func setRedisDefaults() {
	viper.SetDefault("Redis.Enabled", "false")
	viper.SetDefault("Redis.Port", "6379")
	viper.SetDefault("Redis.Host", "localhost")
	viper.SetDefault("Redis.User", "")
	viper.SetDefault("Redis.Password", "")
	viper.SetDefault("Redis.DB", "0")
	viper.SetDefault("Redis.ChannelName", "ceramic/blocks")
	viper.SetDefault("Redis.ClientCert", "")
	viper.SetDefault("Redis.ClientKey", "")
	viper.SetDefault("Redis.CaCert", "")
	viper.SetDefault("Redis.MinIdleConns", "1")
	viper.SetDefault("Redis.MaxIdleConns", "5")
	viper.SetDefault("Redis.ConnMaxIdleTime", "10m")
	viper.SetDefault("Redis.MaxOpenConns", "15")
	viper.SetDefault("Redis.ConnMaxLifetime", "1h")
	viper.SetDefault("Redis.MaxElapsedTime", "10m")
	viper.SetDefault("Redis.MaxInterval", "60s")
	viper.SetDefault("Redis.MaxWorkers", "2")
	viper.SetDefault("Redis.MaxQueueSize", "100")
}
