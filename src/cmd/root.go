package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/common"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"

	"github.com/spf13/cobra"
)

var (
	RootCmd = &cobra.Command{
		Use:   "anchor-syncer",
		Short: "Keeps the local anchor index in sync with the chain",

		// All child commands will use this
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			// Setup a context that gets cancelled upon SIGINT
			applicationCtx, applicationCtxCancel = context.WithCancel(context.Background())

			signalChannel = make(chan os.Signal, 1)
			signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
			go func() {
				select {
				case <-signalChannel:
					applicationCtxCancel()
				case <-applicationCtx.Done():
				}
			}()

			// Load configuration
			conf, err = config.Load(cfgFile)
			if err != nil {
				return
			}
			applicationCtx = common.SetConfig(applicationCtx, conf)

			// Setup logging
			err = logger.Init(conf)
			if err != nil {
				return
			}
			return
		},

		// Run after all commands
		PersistentPostRunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				signal.Stop(signalChannel)
				applicationCtxCancel()
			}()
			log := logger.NewSublogger("root-cmd")
			<-applicationCtx.Done()
			log.Debug("Finished")
			return
		},
		SilenceErrors: true,
	}

	// Configuration
	conf    *config.Config
	cfgFile string

	// Context setup
	applicationCtx       context.Context
	applicationCtxCancel context.CancelFunc
	signalChannel        chan os.Signal
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
}
