package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/policykit/internal/backend"
	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/core/api"
	"github.com/solatis/policykit/internal/core/config"
	"github.com/solatis/policykit/internal/core/db"
)

// openDatabase opens --db-url and loads the named queries.
func openDatabase(ctx context.Context) (*sqlx.DB, *db.Queries, error) {
	if dbURL == "" {
		return nil, nil, fmt.Errorf("--db-url required (or set %s)", envDBURL)
	}
	database, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}

// requireMigrated fails when any migration is pending.
func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'policykit migrate up' first", s.ID)
		}
	}
	return nil
}

// dataSources selects where reference data and policies live: the REST
// backend when backend.base_url is set, the local database otherwise.
// Reference data is cached either way.
func dataSources(cfg *config.Config, queries *db.Queries) (catalog.Source, api.PolicyRepository, error) {
	if cfg.Backend.BaseURL != "" {
		client := backend.New(cfg.Backend.BaseURL, config.BackendAPIKey(), cfg.Backend.Timeout, logger)
		logger.Info("using REST backend", "base_url", cfg.Backend.BaseURL)
		return catalog.NewCache(client, cfg.Catalog.StaleTime, logger), client, nil
	}
	if queries == nil {
		return nil, nil, fmt.Errorf("no backend.base_url configured and no database available")
	}
	logger.Info("using local database store")
	return catalog.NewCache(db.NewCatalogStore(queries), cfg.Catalog.StaleTime, logger), db.NewPolicyStore(queries), nil
}
