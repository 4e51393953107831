package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/config"
)

var (
	flagConfPath string

	// v holds the defaults and environment; flags are bound to it in init.
	v *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:          "collab",
	Short:        "Real-time collaboration client for the project tracker",
	SilenceUsage: true,
}

// Run executes CLI.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}

// loadConfig reads the effective config: flags over environment over the
// config file over defaults.
func loadConfig() (*config.Config, error) {
	return config.LoadFrom(v, flagConfPath)
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func init() {
	v = config.NewViper()

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfPath, "config", "c", "", "Config path")
	flags.String("url", config.DefaultURL, "Websocket endpoint of the collaboration server")
	flags.String("transport", config.DefaultTransport, "Websocket library: gorilla, gws")
	flags.String("codec", config.DefaultCodec, "Wire encoding: json, cbor")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", config.DefaultLogFormat, "Log format: text, json, zerolog, zap")

	bindFlag("url", "url")
	bindFlag("transport", "transport")
	bindFlag("codec", "codec")
	bindFlag("log.level", "log-level")
	bindFlag("log.format", "log-format")

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newConfigCmd())
}
