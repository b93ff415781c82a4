package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/apiserver"
	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/config"
	"github.com/granduke/atlas/internal/identity"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/internal/resolver"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		host       string
		storeType  string
		originURL  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Atlas server",
		Long:  "Start the Atlas API server, cache and background index rebuilder.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load configuration with CLI overrides.
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Type = storeType
			}
			if cmd.Flags().Changed("origin") {
				cfg.Origin.BaseURL = originURL
			}
			if cfg.Origin.BaseURL == "" {
				return fmt.Errorf("origin base URL is required (config origin.baseURL or --origin)")
			}

			// 2. Create logger.
			logger, err := buildLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			// 3. Open the key-value store.
			kv, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			// 4. Wire cache, rebuilder, access, origin, identity, resolver.
			cacheStore := cache.NewStore(kv, cfg.Cache.RebuildDisabled, logger)
			rebuilder := cache.NewRebuilder(cacheStore, logger)
			cacheStore.AttachRebuilder(rebuilder)

			originClient := origin.New(cfg.Origin.BaseURL, cfg.Origin.ServiceToken, cfg.OriginTimeout(), logger)
			accessResolver := access.NewResolver(kv, logger)
			identitySvc := identity.NewService(cacheStore, originClient, logger)
			res := resolver.New(kv, cacheStore, accessResolver, identitySvc, originClient, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rebuilder.Start(ctx)

			// 5. Create and start the API server.
			addr := cfg.ServerAddress()
			apiSrv := apiserver.NewServer(addr, res, cacheStore, logger)

			// Print startup banner.
			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Atlas")
			fmt.Printf("   API Server: http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("   Store:      %s\n", cfg.Store.Type)
			fmt.Printf("   Origin:     %s\n", cfg.Origin.BaseURL)
			fmt.Println()

			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 6. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("API server error", zap.Error(err))
				rebuilder.Stop()
				return err
			}

			// Graceful shutdown with a 10-second deadline.
			fmt.Println()
			logger.Info("shutting down gracefully...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			rebuilder.Stop()
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}
			cancel()

			logger.Info("Atlas stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().IntVar(&port, "port", 7130, "API server port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "API server host")
	cmd.Flags().StringVar(&storeType, "store", "redis", "Store backend: redis|bolt|memory")
	cmd.Flags().StringVar(&originURL, "origin", "", "Origin service base URL")

	return cmd
}

// buildLogger constructs a zap logger from the log configuration.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// openStore opens the configured key-value store backend.
func openStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		kv, err := kvstore.NewRedisStore(context.Background(), kvstore.RedisOptions{
			Addr:     cfg.Store.Addr,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Store.Addr, err)
		}
		return kv, nil
	case "bolt":
		if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", cfg.Store.DataDir, err)
		}
		kv, err := kvstore.NewBoltStore(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath(), err)
		}
		return kv, nil
	case "memory":
		return kvstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}
