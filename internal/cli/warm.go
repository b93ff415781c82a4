package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/config"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/pkg/model"
)

func newWarmCmd() *cobra.Command {
	var (
		configPath string
		rootAsset  int64
		season     int64
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Bulk-seed the cache from the origin",
		Long: `Fetch the organizational hierarchy and crop varieties from the origin
under the service credential and persist them, then rebuild the index
once at the end. With --root and --season the field-level assets and
freshness marker for that pair are seeded too.`,
		Example: `  atlas warm -c atlas.yaml
  atlas warm -c atlas.yaml --root 5 --season 2024`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Origin.BaseURL == "" {
				return fmt.Errorf("origin base URL is required (config origin.baseURL)")
			}

			logger, err := buildLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			kv, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			// Rebuild once at the end instead of after every batch.
			cacheStore := cache.NewStore(kv, true, logger)
			originClient := origin.New(cfg.Origin.BaseURL, cfg.Origin.ServiceToken, cfg.OriginTimeout(), logger)
			ctx := context.Background()

			assets, err := originClient.FetchAssets(ctx, origin.AssetQuery{ToFarmsOnly: true}, "")
			if err != nil {
				return fmt.Errorf("fetching organizational assets: %w", err)
			}
			if err := cacheStore.StoreAssets(ctx, assets, 0); err != nil {
				return fmt.Errorf("storing organizational assets: %w", err)
			}
			fmt.Printf("Seeded %d organizational assets\n", len(assets))

			if rootAsset != 0 && season != 0 {
				fields, err := originClient.FetchAssets(ctx, origin.AssetQuery{
					RootAsset: model.ID(rootAsset),
					Season:    model.ID(season),
					Shape:     true,
				}, cfg.Origin.ServiceToken)
				if err != nil {
					return fmt.Errorf("fetching field assets: %w", err)
				}
				if err := cacheStore.StoreAssets(ctx, fields, model.ID(season)); err != nil {
					return fmt.Errorf("storing field assets: %w", err)
				}
				if err := cacheStore.MarkFetched(ctx, model.ID(rootAsset), model.ID(season)); err != nil {
					return fmt.Errorf("marking pair fetched: %w", err)
				}
				fmt.Printf("Seeded %d field assets for root %d, season %d\n", len(fields), rootAsset, season)
			}

			hybrids, err := originClient.FetchHybrids(ctx, 0, cfg.Origin.ServiceToken)
			if err != nil {
				return fmt.Errorf("fetching crop varieties: %w", err)
			}
			if err := cacheStore.StoreHybrids(ctx, hybrids); err != nil {
				return fmt.Errorf("storing crop varieties: %w", err)
			}
			fmt.Printf("Seeded %d crop varieties\n", len(hybrids))

			if err := cacheStore.RebuildIndex(ctx); err != nil {
				return fmt.Errorf("rebuilding index: %w", err)
			}
			color.Green("Cache warmed, index rebuilt")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().Int64Var(&rootAsset, "root", 0, "Root asset to seed field-level assets for")
	cmd.Flags().Int64Var(&season, "season", 0, "Season to seed field-level assets for")

	return cmd
}
