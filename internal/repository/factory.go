package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/pipetrack/pipetrack-api/internal/config"
	"github.com/pipetrack/pipetrack-api/internal/migration"
)

// New is the single composition point for backend selection. It constructs
// the configured backend and returns a close function releasing whatever
// resources the backend holds (a no-op for the file store).
func New(cfg *config.Config, logger zerolog.Logger) (PipelineRunRepository, func() error, error) {
	switch cfg.Backend {
	case config.BackendJSONL:
		return NewJSONLRepository(cfg.JSONL.Path, logger), func() error { return nil }, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, nil, classify("open database", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, classify("ping database", err)
		}

		// Migrations own the reference schema only; a custom table or column
		// map means the operator owns the schema.
		if cfg.Database.Table == "pipeline_runs" && len(cfg.Database.ColumnMap) == 0 {
			if err := migration.Run(db, logger); err != nil {
				db.Close()
				return nil, nil, classify("run migrations", err)
			}
		}

		repo, err := NewPostgresRepository(db, cfg.Database.Table, ColumnMap(cfg.Database.ColumnMap), cfg.Database.AcquireTimeout, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil

	default:
		return nil, nil, &ConfigError{Reason: fmt.Sprintf("unsupported backend %q", cfg.Backend)}
	}
}
