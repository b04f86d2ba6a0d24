// Package app wires configuration into a ready aggregator for the server
// binaries.
package app

import (
	"database/sql"
	"fmt"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/internal/sources"
	"modelhub/pkg/database"
	"modelhub/pkg/utils"
)

type App struct {
	Config *utils.Config
	DB     *sql.DB // nil when the local catalog is disabled
	Agg    *aggregate.Aggregator
}

// New initialises logging, opens the catalog database when the local
// source is enabled and registers every enabled source.
func New(cfg *utils.Config) (*App, error) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	a := &App{Config: cfg}
	if cfg.Sources.Local.Enabled {
		dbCfg := database.DefaultConfig()
		if cfg.Database.Path != "" {
			dbCfg.Path = cfg.Database.Path
		}
		db, err := database.Open(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate catalog: %w", err)
		}
		a.DB = db
		logging.Info().Str("path", dbCfg.Path).Msg("catalog database ready")
	}

	a.Agg = aggregate.NewAggregator(aggregate.Options{
		MaxPageSize:      cfg.Aggregate.MaxPageSize,
		MinTrendingBatch: cfg.Aggregate.MinTrendingBatch,
		SourceTimeout:    cfg.Aggregate.SourceTimeout,
	}, sources.Build(cfg.Sources, a.DB)...)
	return a, nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
