package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metergate/metergate/adapters/idgen"
	"github.com/metergate/metergate/adapters/sqlite"
	"github.com/metergate/metergate/config"
	"github.com/metergate/metergate/domain/keymeta"
)

var (
	keyValue       string
	keyAPIID       string
	keyClientID    string
	keyUserID      string
	keyUsageLimit  int64
	keyHourlyLimit int64
	keyExpiresIn   time.Duration
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Create a new API key bound to an API and a client.

A random key string is generated unless --key is given. Limits default
to the quota section of the configuration; pass 0 for unlimited.

Examples:
  metergate keys create --api-id weather --client-id acme
  metergate keys create --api-id weather --client-id acme --hourly-limit 100 --expires-in 720h`,
	RunE: runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE:  runKeysList,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)

	keysCreateCmd.Flags().StringVar(&keyValue, "key", "", "key string (generated if empty)")
	keysCreateCmd.Flags().StringVar(&keyAPIID, "api-id", "", "API identifier (required)")
	keysCreateCmd.Flags().StringVar(&keyClientID, "client-id", "", "client identifier (required)")
	keysCreateCmd.Flags().StringVar(&keyUserID, "user-id", "", "user identifier")
	keysCreateCmd.Flags().Int64Var(&keyUsageLimit, "usage-limit", -1, "lifetime call limit (-1 = config default, 0 = unlimited)")
	keysCreateCmd.Flags().Int64Var(&keyHourlyLimit, "hourly-limit", -1, "hourly call limit (-1 = config default, 0 = unlimited)")
	keysCreateCmd.Flags().DurationVar(&keyExpiresIn, "expires-in", 0, "expiry relative to now (0 = never)")
	keysCreateCmd.MarkFlagRequired("api-id")
	keysCreateCmd.MarkFlagRequired("client-id")
}

func openRegistry() (*sqlite.DB, *sqlite.KeyRegistry, *config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return db, sqlite.NewKeyRegistry(db), cfg, nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	db, registry, cfg, err := openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()

	if keyValue == "" {
		keyValue = idgen.UUID{}.New()
	}
	if keyUsageLimit < 0 {
		keyUsageLimit = cfg.Quota.DefaultUsageLimit
	}
	if keyHourlyLimit < 0 {
		keyHourlyLimit = cfg.Quota.DefaultHourlyLimit
	}

	k := keymeta.Key{
		Key:               keyValue,
		APIID:             keyAPIID,
		ClientID:          keyClientID,
		UserID:            keyUserID,
		IsActive:          true,
		UsageLimit:        keyUsageLimit,
		UsageLimitPerHour: keyHourlyLimit,
		CreatedAt:         time.Now().UTC(),
	}
	if keyExpiresIn > 0 {
		exp := k.CreatedAt.Add(keyExpiresIn)
		k.ExpiresAt = &exp
	}

	if err := registry.Create(context.Background(), k); err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("Created key %s\n", k.Key)
	fmt.Printf("  API:          %s\n", k.APIID)
	fmt.Printf("  Client:       %s\n", k.ClientID)
	fmt.Printf("  Usage limit:  %s\n", limitString(k.UsageLimit))
	fmt.Printf("  Hourly limit: %s\n", limitString(k.UsageLimitPerHour))
	if k.ExpiresAt != nil {
		fmt.Printf("  Expires:      %s\n", k.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	db, registry, _, err := openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := registry.List(context.Background())
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	fmt.Printf("%-38s %-12s %-12s %-8s %-10s %-10s %s\n",
		"KEY", "API", "CLIENT", "ACTIVE", "USED", "LIMIT", "HOURLY")
	for _, k := range keys {
		fmt.Printf("%-38s %-12s %-12s %-8t %-10d %-10s %s\n",
			k.Key, k.APIID, k.ClientID, k.IsActive, k.UsageTotalCount,
			limitString(k.UsageLimit), limitString(k.UsageLimitPerHour))
	}
	return nil
}

func limitString(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
