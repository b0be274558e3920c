package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metergate/metergate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Println("Configuration valid")
		fmt.Printf("  Server:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  Redis:   %s\n", cfg.Redis.Addr)
		fmt.Printf("  Topic:   %s\n", cfg.Stream.Topic)
		fmt.Printf("  Alerts:  %s\n", cfg.Alerts.Mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
