package migration

import (
	"database/sql"
	"embed"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// gooseLogger routes goose output through the application logger.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}

// Run applies the embedded migrations to the reference schema.
func Run(db *sql.DB, logger zerolog.Logger) error {
	goose.SetLogger(gooseLogger{logger: logger.With().Str("component", "goose").Logger()})
	goose.SetBaseFS(embeddedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return err
	}

	logger.Info().Msg("Migrations completed successfully")
	return nil
}
