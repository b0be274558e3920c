package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/metergate/metergate/bootstrap"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the stream consumers without the gateway server",
	Long: `Run only the three consumer groups against the event log:

  logger-group     persists per-API analytics records
  analytics-group  maintains realtime cache counters
  anomaly-group    detects failure bursts and sends alerts

Use this to scale event processing separately from the gateway.`,
	RunE: runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	holder, err := loadHolder()
	if err != nil {
		return err
	}
	defer holder.Stop()

	app, err := bootstrap.New(holder)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.RunConsumers(ctx)
}
