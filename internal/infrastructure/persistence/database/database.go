// Package database opens the backing content store connection.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

// DB wraps the pooled connection together with the settings used to open it.
type DB struct {
	*sql.DB
	Driver             string
	SlowQueryThreshold time.Duration
}

// Info describes the connection for the status endpoint.
type Info struct {
	Driver          string `json:"driver"`
	OpenConnections int    `json:"openConnections"`
	InUse           int    `json:"inUse"`
	Idle            int    `json:"idle"`
}

// NewConnection opens and pings the store configured in cfg.
func NewConnection(ctx context.Context, cfg *config.Config, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating database connection", "driver", cfg.DBDriver)

	dsn := cfg.DataSourceName()
	if cfg.DBDriver == "sqlite3" {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driver", cfg.DBDriver)
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleMinutes) * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driver", cfg.DBDriver)
		return nil, fmt.Errorf("ping %s database: %w", cfg.DBDriver, err)
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driver", cfg.DBDriver, "duration", duration)
	if duration > cfg.SlowQueryThreshold {
		logger.LogSlowQuery("DATABASE_CONNECTION", duration, "system")
	}

	return &DB{DB: db, Driver: cfg.DBDriver, SlowQueryThreshold: cfg.SlowQueryThreshold}, nil
}

// Info reports pool usage.
func (d *DB) Info() Info {
	s := d.Stats()
	return Info{
		Driver:          d.Driver,
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
	}
}
