package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/metergate/metergate/bootstrap"
	"github.com/metergate/metergate/config"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server and stream consumers",
	Long: `Start the Metergate server.

The server will:
  - Load configuration from metergate.yaml (or --config)
  - Or load configuration from METERGATE_* environment variables
  - Connect to Redis and the database
  - Serve the evaluation and analytics endpoints
  - Run the three stream consumer groups

Environment variables (for Docker deployments):
  METERGATE_REDIS_ADDR        - Redis address (default: localhost:6379)
  METERGATE_DATABASE_DSN      - Database path (default: metergate.db)
  METERGATE_SERVER_PORT       - Server port (default: 8080)
  METERGATE_ANOMALY_THRESHOLD - Failure-burst alert threshold
  METERGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  metergate serve
  metergate serve --config /etc/metergate/config.yaml
  metergate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	return app.Run(ctx)
}

// loadHolder builds the config holder from the file when present,
// otherwise from environment variables only.
func loadHolder() (*config.Holder, error) {
	logger := bootstrap.SetupLogger(config.Default().Logging)

	if _, err := os.Stat(cfgFile); err == nil {
		holder, err := config.NewHolder(cfgFile, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		if hotReload {
			if err := holder.WatchFile(); err != nil {
				logger.Warn().Err(err).Msg("config file watch unavailable")
			}
			holder.WatchSignals()
		}
		return holder, nil
	}

	if !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set METERGATE_* environment variables")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  METERGATE_REDIS_ADDR=localhost:6379 metergate serve")
		return nil, fmt.Errorf("no configuration")
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	fmt.Println("Running with environment variables (no config file)")
	return config.NewStaticHolder(cfg, logger), nil
}
