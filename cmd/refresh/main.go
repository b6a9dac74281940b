// Command refresh is the operator-facing CLI for out-of-band SKU mapping
// refreshes and stock lookups, invoking the same services the HTTP admin
// surface uses.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/internal/service"
	"github.com/proyuen/invsync/internal/storefront"
	"github.com/proyuen/invsync/pkg/cache"
	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/database"
	"github.com/proyuen/invsync/pkg/snowflake"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "refresh",
	Short:   "Operator CLI for SKU mapping refreshes and stock lookups",
	Version: "1.0.0",
}

var refreshSiteCmd = &cobra.Command{
	Use:   "site [site_id]",
	Short: "Walk one configured storefront's catalog and upsert its sku mappings",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefreshSite,
}

var refreshAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Refresh mappings for every active configured site, in turn",
	RunE:  runRefreshAll,
}

var stockCmd = &cobra.Command{
	Use:   "stock [sku]",
	Short: "Print the current on-hand quantity for a sku",
	Args:  cobra.ExactArgs(1),
	RunE:  runStock,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs", "path to the directory containing config.yaml")
	rootCmd.AddCommand(refreshSiteCmd, refreshAllCmd, stockCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildServices wires the same repository/service stack cmd/server uses,
// minus the HTTP surface and propagation worker: this CLI talks to the
// database (and, for refresh locking, Redis) directly.
func buildServices() (service.MappingService, service.InventoryService, *config.Settings, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := snowflake.Init(cfg.SnowflakeNodeID); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize snowflake: %w", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	txManager := database.NewTransactionManager(db)

	ledgerRepo := repository.NewLedgerRepository(db)
	mappingRepo := repository.NewMappingRepository(db)

	var stockCache cache.StockCache
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		redisClient = client
		stockCache = cache.NewStockCache(cache.BuildDecoratedCache(cache.NewRedisCache(client, "invsync")))
	}

	inventorySvc := service.NewInventoryService(ledgerRepo, txManager, stockCache, cfg.BackordersDefault)

	storefrontClient := storefront.NewClient()
	mappingSvc := service.NewMappingService(storefrontClient, mappingRepo, ledgerRepo, txManager, redisClient, cfg.BackordersDefault)

	return mappingSvc, inventorySvc, cfg, nil
}

func runRefreshSite(cmd *cobra.Command, args []string) error {
	siteID := args[0]
	mappingSvc, _, cfg, err := buildServices()
	if err != nil {
		return err
	}

	site, ok := cfg.SiteByID(siteID)
	if !ok {
		return fmt.Errorf("unknown site_id: %s", siteID)
	}

	result, err := mappingSvc.RefreshSiteMappings(context.Background(), site)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Printf("site=%s mapped=%d errors=%d\n", result.SiteID, result.Mapped, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e)
	}
	return nil
}

func runRefreshAll(cmd *cobra.Command, args []string) error {
	mappingSvc, _, cfg, err := buildServices()
	if err != nil {
		return err
	}

	var failed int
	for _, site := range cfg.ActiveSites() {
		result, err := mappingSvc.RefreshSiteMappings(context.Background(), site)
		if err != nil {
			failed++
			fmt.Printf("site=%s refresh failed: %v\n", site.SiteID, err)
			continue
		}
		fmt.Printf("site=%s mapped=%d errors=%d\n", result.SiteID, result.Mapped, len(result.Errors))
	}

	if failed > 0 {
		return fmt.Errorf("%d site(s) failed to refresh", failed)
	}
	return nil
}

func runStock(cmd *cobra.Command, args []string) error {
	sku := args[0]
	_, inventorySvc, _, err := buildServices()
	if err != nil {
		return err
	}

	onHand, err := inventorySvc.GetStock(context.Background(), sku)
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}

	fmt.Printf("sku=%s on_hand=%d\n", sku, onHand)
	return nil
}
