package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/insight-back/internal/cache"
	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/logger"
	"github.com/insight-back/pkg/models"
)

// keysCmd manages vendor credential slots from the command line, against the
// same persistent store the running server uses.
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage vendor API credentials",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every vendor slot with keys masked",
	RunE:  runKeysList,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <vendor> <key> [secret]",
	Short: "Set the credential for a vendor slot",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runKeysSet,
}

var keysClearCmd = &cobra.Command{
	Use:   "clear <vendor>",
	Short: "Clear the credential for a vendor slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysClear,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysClearCmd)
}

// openStore connects to the credential backend and loads the store
func openStore(ctx context.Context) (*credentials.Store, func(), error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Redis.Enabled {
		return nil, nil, fmt.Errorf("redis is disabled; credentials have no persistent backend")
	}

	cfg.Logging.Level = "warn"
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	defaults := map[models.Vendor]models.Credential{
		models.VendorPredictions: {Key: cfg.Vendors.Predictions.APIKey},
		models.VendorFinance:     {Key: cfg.Vendors.Finance.APIKey},
		models.VendorNews:        {Key: cfg.Vendors.News.APIKey, Secret: cfg.Vendors.News.APISecret},
		models.VendorTextGen:     {Key: cfg.Vendors.TextGen.APIKey},
		models.VendorSpeech:      {Key: cfg.Vendors.Speech.APIKey},
	}

	store := credentials.NewStore(redisClient, defaults, log)
	if err := store.Load(ctx); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	return store, func() { redisClient.Close() }, nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("%-14s %-12s %-10s %s\n", "VENDOR", "CONFIGURED", "DEFAULT", "KEY")
	for _, status := range store.Status() {
		configured := "no"
		if status.Configured {
			configured = "yes"
		}
		isDefault := "-"
		if status.IsDefault {
			isDefault = "yes"
		}
		fmt.Printf("%-14s %-12s %-10s %s\n", status.Vendor, configured, isDefault, status.MaskedKey)
	}
	return nil
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vendor := models.Vendor(strings.ToLower(args[0]))
	if !vendor.Valid() {
		return fmt.Errorf("unknown vendor %q (valid: %v)", args[0], models.AllVendors())
	}

	cred := models.Credential{Key: args[1]}
	if len(args) == 3 {
		cred.Secret = args[2]
	}

	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.Set(ctx, vendor, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("Credential for %s updated\n", vendor)
	return nil
}

func runKeysClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vendor := models.Vendor(strings.ToLower(args[0]))
	if !vendor.Valid() {
		return fmt.Errorf("unknown vendor %q (valid: %v)", args[0], models.AllVendors())
	}

	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.Clear(ctx, vendor); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	fmt.Printf("Credential for %s cleared\n", vendor)
	return nil
}
