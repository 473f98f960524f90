package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "brokerctl",
	Short: "brokerctl - operator tool for the tool access broker",
	Long: `brokerctl redeems auth codes against running brokers and mints or checks
admin session tokens with the broker's configured secret.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "broker config file")
}
