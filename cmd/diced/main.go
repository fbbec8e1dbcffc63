package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/services"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "diced",
		Short:         "Provably fair dice backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(serveCmd(), migrateCmd(), verifyCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.L().Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(&logger.Options{
		Level:   logger.ParseLevel(cfg.LogLevel),
		NoColor: cfg.Env == "production",
	})
	return cfg, nil
}

// openStore connects the configured backend. The returned limiter shares
// the store's backend when it has one.
func openStore(ctx context.Context, cfg *config.Config) (services.Store, services.RateLimiter, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		store, err := services.NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.L().Info("Using redis store", "addr", cfg.Store.RedisURL)
		return store, store, nil

	case config.StoreSQL:
		db, err := services.OpenSQL(ctx, cfg.Store.DatabaseURL, cfg.LogLevel == "debug")
		if err != nil {
			return nil, nil, err
		}
		store := services.NewSQLStore(db)
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		// rate limit windows are short lived and stay in process
		return store, services.NewMemoryStore(), nil

	case config.StoreMemory:
		logger.L().Warn("Using in-memory store, state is lost on restart")
		store := services.NewMemoryStore()
		return store, store, nil

	default:
		return nil, nil, errors.New("unknown store driver: " + cfg.Store.Driver)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StoreSQL {
				return fmt.Errorf("migrate needs the sql store driver, got %q", cfg.Store.Driver)
			}

			db, err := services.OpenSQL(cmd.Context(), cfg.Store.DatabaseURL, cfg.LogLevel == "debug")
			if err != nil {
				return err
			}
			store := services.NewSQLStore(db)
			defer store.Close()

			if err := store.Migrate(); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.L().Info("Schema is up to date")
			return nil
		},
	}
}
