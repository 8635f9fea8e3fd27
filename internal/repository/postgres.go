package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipetrack/pipetrack-api/internal/models"
)

// safeIdent is the only shape a physical column or table name may take.
// Anything else is rejected at configuration time so user-supplied mapping
// values can never alter query structure.
var safeIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnMap translates model field names to physical column names. Keys must
// be known PipelineRun fields, values must be safe SQL identifiers. Fields
// without an entry map to themselves.
type ColumnMap map[string]string

func (m ColumnMap) validate() error {
	known := make(map[string]bool, len(models.RunFields()))
	for _, f := range models.RunFields() {
		known[f] = true
	}
	for field, column := range m {
		if !known[field] {
			return &ConfigError{Reason: fmt.Sprintf("column map references unknown field %q", field)}
		}
		if !safeIdent.MatchString(column) {
			return &ConfigError{Reason: fmt.Sprintf("column map value %q for field %q is not a safe identifier", column, field)}
		}
	}
	return nil
}

// resolve returns the physical column for a model field. It fails closed:
// an unknown field is a configuration error, never passed through.
func (m ColumnMap) resolve(field string) (string, error) {
	for _, f := range models.RunFields() {
		if f == field {
			if mapped, ok := m[field]; ok {
				return mapped, nil
			}
			return field, nil
		}
	}
	return "", &ConfigError{Reason: fmt.Sprintf("no column mapping for unknown field %q", field)}
}

// PostgresRepository translates the repository contract into parameterized
// SQL against a configured table. Every value reaches the driver as a bind
// parameter; every identifier is resolved through the validated column map.
type PostgresRepository struct {
	db             *sql.DB
	table          string
	columns        ColumnMap
	acquireTimeout time.Duration
	logger         zerolog.Logger

	// resolved once at construction, in models.RunFields order
	columnList []string
}

func NewPostgresRepository(db *sql.DB, table string, columns ColumnMap, acquireTimeout time.Duration, logger zerolog.Logger) (*PostgresRepository, error) {
	if !safeIdent.MatchString(table) {
		return nil, &ConfigError{Reason: fmt.Sprintf("table name %q is not a safe identifier", table)}
	}
	if columns == nil {
		columns = ColumnMap{}
	}
	if err := columns.validate(); err != nil {
		return nil, err
	}

	columnList := make([]string, 0, len(models.RunFields()))
	for _, field := range models.RunFields() {
		column, err := columns.resolve(field)
		if err != nil {
			return nil, err
		}
		columnList = append(columnList, column)
	}

	return &PostgresRepository{
		db:             db,
		table:          table,
		columns:        columns,
		acquireTimeout: acquireTimeout,
		logger:         logger.With().Str("backend", "postgres").Logger(),
		columnList:     columnList,
	}, nil
}

// opContext applies the configured acquisition timeout so a saturated pool
// surfaces as resource exhaustion instead of an indefinite hang.
func (r *PostgresRepository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.acquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.acquireTimeout)
}

// buildWhere assembles one bound clause per present filter. Values are never
// interpolated into the statement text.
func (r *PostgresRepository) buildWhere(f Filter) (string, []interface{}, error) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(field, op string, value interface{}) error {
		column, err := r.columns.resolve(field)
		if err != nil {
			return err
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", column, op, len(args)))
		return nil
	}

	if f.StartUTC != nil {
		if err := add("start_utc", ">=", *f.StartUTC); err != nil {
			return "", nil, err
		}
	}
	if f.EndUTC != nil {
		if err := add("end_utc", "<=", *f.EndUTC); err != nil {
			return "", nil, err
		}
	}
	if f.MinRowcount != nil {
		if err := add("rowcount", ">=", *f.MinRowcount); err != nil {
			return "", nil, err
		}
	}
	if f.MaxRowcount != nil {
		if err := add("rowcount", "<=", *f.MaxRowcount); err != nil {
			return "", nil, err
		}
	}
	if f.PipelineName != nil {
		if err := add("pipeline_name", "=", *f.PipelineName); err != nil {
			return "", nil, err
		}
	}
	if f.ScriptName != nil {
		if err := add("script_name", "=", *f.ScriptName); err != nil {
			return "", nil, err
		}
	}
	if f.PipelineType != nil {
		if err := add("pipeline_type", "=", *f.PipelineType); err != nil {
			return "", nil, err
		}
	}
	if f.Environment != nil {
		if err := add("environment", "=", *f.Environment); err != nil {
			return "", nil, err
		}
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter, p Page) ([]models.PipelineRun, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	where, args, err := r.buildWhere(f)
	if err != nil {
		return nil, err
	}
	orderCol, err := r.columns.resolve("start_utc")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s DESC",
		strings.Join(r.columnList, ", "), r.table, where, orderCol)
	if !p.All {
		args = append(args, p.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, p.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list runs", err)
	}
	defer rows.Close()

	runs := []models.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, classify("scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list runs", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (models.PipelineRun, error) {
	var (
		run          models.PipelineRun
		pipelineName sql.NullString
		scriptName   sql.NullString
		pipelineType sql.NullString
		environment  sql.NullString
	)
	err := rows.Scan(
		&run.StartLocal,
		&run.EndLocal,
		&run.StartUTC,
		&run.EndUTC,
		&run.ElapsedSeconds,
		&run.ElapsedHuman,
		&run.OutputFile,
		&run.Rowcount,
		&run.LogFile,
		&run.PID,
		&run.DateCode,
		&pipelineName,
		&scriptName,
		&pipelineType,
		&environment,
	)
	if err != nil {
		return run, err
	}
	run.PipelineName = nullable(pipelineName)
	run.ScriptName = nullable(scriptName)
	run.PipelineType = nullable(pipelineType)
	run.Environment = nullable(environment)
	return run, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r *PostgresRepository) Count(ctx context.Context, f Filter) (int, error) {
	where, args, err := r.buildWhere(f)
	if err != nil {
		return 0, err
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.table, where)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, classify("count runs", err)
	}
	return count, nil
}

// Insert writes one run in its own transaction; the commit happens before
// success is reported.
func (r *PostgresRepository) Insert(ctx context.Context, run *models.PipelineRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	placeholders := make([]string, len(r.columnList))
	for i := range r.columnList {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table, strings.Join(r.columnList, ", "), strings.Join(placeholders, ", "))

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin insert", err)
	}

	args := []interface{}{
		run.StartLocal,
		run.EndLocal,
		run.StartUTC,
		run.EndUTC,
		run.ElapsedSeconds,
		run.ElapsedHuman,
		run.OutputFile,
		run.Rowcount,
		run.LogFile,
		run.PID,
		run.DateCode,
		run.PipelineName,
		run.ScriptName,
		run.PipelineType,
		run.Environment,
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return classify("insert run", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("commit insert", err)
	}
	return nil
}

// Summaries mirrors the in-memory aggregation the file backend performs, as
// one grouped query. The FILTER clauses keep averages absent rather than
// zero when no run contributed a positive value.
func (r *PostgresRepository) Summaries(ctx context.Context) ([]models.PipelineSummary, error) {
	col := func(field string) string {
		// fields resolved here are all known; resolve cannot fail for them
		c, _ := r.columns.resolve(field)
		return c
	}
	query := fmt.Sprintf(`
		SELECT
			%[1]s, %[2]s, %[3]s, %[4]s,
			COUNT(*) AS total_runs,
			MAX(%[5]s) AS last_run,
			AVG(%[6]s) FILTER (WHERE %[6]s > 0) AS avg_duration,
			COALESCE(SUM(%[7]s), 0) AS total_rowcount,
			AVG(%[7]s) FILTER (WHERE %[7]s > 0) AS avg_rowcount
		FROM %[8]s
		GROUP BY %[1]s, %[2]s, %[3]s, %[4]s
		ORDER BY last_run DESC NULLS LAST`,
		col("pipeline_name"), col("script_name"), col("pipeline_type"), col("environment"),
		col("start_utc"), col("elapsed_seconds"), col("rowcount"), r.table)

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("summarize runs", err)
	}
	defer rows.Close()

	summaries := []models.PipelineSummary{}
	for rows.Next() {
		var (
			s            models.PipelineSummary
			pipelineName sql.NullString
			scriptName   sql.NullString
			pipelineType sql.NullString
			environment  sql.NullString
			lastRun      sql.NullTime
			avgDuration  sql.NullFloat64
			avgRowcount  sql.NullFloat64
		)
		if err := rows.Scan(
			&pipelineName,
			&scriptName,
			&pipelineType,
			&environment,
			&s.TotalRuns,
			&lastRun,
			&avgDuration,
			&s.TotalRowcount,
			&avgRowcount,
		); err != nil {
			return nil, classify("scan summary", err)
		}
		s.PipelineName = nullable(pipelineName)
		s.ScriptName = nullable(scriptName)
		s.PipelineType = nullable(pipelineType)
		s.Environment = nullable(environment)
		if lastRun.Valid {
			s.LastRun = &models.Timestamp{Time: lastRun.Time}
		}
		if avgDuration.Valid {
			s.AvgDuration = &avgDuration.Float64
		}
		if avgRowcount.Valid {
			s.AvgRowcount = &avgRowcount.Float64
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("summarize runs", err)
	}
	return summaries, nil
}

func (r *PostgresRepository) FindByDateCode(ctx context.Context, dateCode string) (*models.PipelineRun, error) {
	dateCol, err := r.columns.resolve("date_code")
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 LIMIT 1",
		strings.Join(r.columnList, ", "), r.table, dateCol)

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, dateCode)
	if err != nil {
		return nil, classify("find run", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classify("find run", err)
		}
		return nil, ErrNotFound
	}
	run, err := scanRun(rows)
	if err != nil {
		return nil, classify("scan run", err)
	}
	return &run, nil
}
