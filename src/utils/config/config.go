package config

import (
	"bytes"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config stores global configuration
type Config struct {
	// Is development mode on
	IsDevelopment bool

	// REST API address. API used for monitoring etc.
	RESTListenAddress string

	// Maximum time Syncer will be closing before stop is forced.
	StopTimeout time.Duration

	// Logging level
	LogLevel string

	Database Database
	Ethereum Ethereum
	Cas      Cas
	Syncer   Syncer
	Queue    Queue
	Gateway  Gateway
	Redis    Redis
}

func setDefaults() {
	viper.SetDefault("IsDevelopment", "false")
	viper.SetDefault("RESTListenAddress", ":7777")
	viper.SetDefault("LogLevel", "DEBUG")
	viper.SetDefault("StopTimeout", "30s")

	setDatabaseDefaults()
	setEthereumDefaults()
	setCasDefaults()
	setSyncerDefaults()
	setQueueDefaults()
	setGatewayDefaults()
	setRedisDefaults()
}

func Default() (config *Config) {
	config, _ = Load("")
	return
}

// Visits every field and registers upper snake case ENV name for it
// Works with embedded structs
func BindEnv(path []string, val reflect.Value) {
	if val.Kind() == reflect.Slice {
		// Slice of base types
		key := strings.ToLower(strings.Join(path, "."))
		env := "SYNCER_" + strcase.ToScreamingSnake(strings.Join(path, "_"))
		err := viper.BindEnv(key, env)
		if err != nil {
			panic(err)
		}
	} else if val.Kind() != reflect.Struct {
		// Base types
		key := strings.Join(path, ".")
		env := "SYNCER_" + strcase.ToScreamingSnake(strings.Join(path, "_"))
		err := viper.BindEnv(key, env)
		if err != nil {
			panic(err)
		}
	} else {
		// Iterates over struct fields
		for i := 0; i < val.NumField(); i++ {
			newPath := make([]string, len(path))
			copy(newPath, path)
			newPath = append(newPath, val.Type().Field(i).Name)
			BindEnv(newPath, val.Field(i))
		}
	}
}

func defaultDecoderConfig(output interface{}) *mapstructure.DecoderConfig {
	c := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
	return c
}

// Load configuration from file and env
func Load(filename string) (config *Config, err error) {
	viper.SetConfigType("json")

	setDefaults()

	BindEnv([]string{}, reflect.ValueOf(Config{}))

	// Empty filename means we use default values
	if filename != "" {
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		err = viper.ReadConfig(bytes.NewBuffer(content))
		if err != nil {
			return nil, err
		}
	}

	config = new(Config)
	err = viper.Unmarshal(&config, func(c *mapstructure.DecoderConfig) {
		*c = *defaultDecoderConfig(c.Result)
	})
	if err != nil {
		return nil, err
	}

	return
}
