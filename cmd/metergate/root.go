package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metergate",
	Short: "Metering gateway for third-party APIs with usage analytics",
	Long: `Metergate sits between your clients and third-party APIs.

It validates API keys, enforces usage quotas, caches upstream responses,
and publishes every call to a durable event log. Independent consumers
derive persistent analytics, realtime counters, and failure-burst alerts
from that log.

Quick start:
  metergate keys create --api-id weather --client-id acme
  metergate serve

Management:
  metergate keys      # Manage API keys
  metergate consume   # Run stream consumers standalone
  metergate validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "metergate.yaml", "config file path")
}
