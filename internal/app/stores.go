package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/config"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
	"clipforge/internal/repositories"
	"clipforge/internal/repositories/sqlite"
)

// Stores bundles the record stores for one database backend.
type Stores struct {
	Driver  string
	Jobs    ports.JobStore
	Credits ports.CreditLedger
	Alerts  ports.AlertStore
	Assets  ports.AssetCatalog
	Pinger  ports.Pinger

	// Pool is set for the postgres backend so health checks can report stats.
	Pool *pgxpool.Pool

	close func()
}

// OpenStores connects the configured database and applies its schema.
func OpenStores(ctx context.Context, cfg config.Config, log *logger.Logger) (*Stores, error) {
	switch cfg.DatabaseDriver() {
	case "sqlite":
		path := cfg.SQLitePath()
		log.Info("opening SQLite database", "path", path)
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:  "sqlite",
			Jobs:    sqlite.NewJobRepository(db),
			Credits: sqlite.NewCreditRepository(db),
			Alerts:  sqlite.NewAlertRepository(db),
			Assets:  sqlite.NewAssetRepository(db),
			Pinger:  db,
			close:   func() { _ = db.Close() },
		}, nil

	case "postgres":
		log.Info("connecting to PostgreSQL")
		pool, err := repositories.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repositories.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("PostgreSQL connected")
		return &Stores{
			Driver:  "postgres",
			Jobs:    repositories.NewJobRepository(pool),
			Credits: repositories.NewCreditRepository(pool),
			Alerts:  repositories.NewAlertRepository(pool),
			Assets:  repositories.NewAssetRepository(pool),
			Pinger:  pool,
			Pool:    pool,
			close:   pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database url: %s", cfg.DatabaseURL)
	}
}

func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}
