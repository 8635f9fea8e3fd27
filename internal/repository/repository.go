package repository

import (
	"context"
	"time"

	"github.com/pipetrack/pipetrack-api/internal/models"
)

// Pagination bounds for windowed queries.
const (
	MinLimit     = 1
	MaxLimit     = 10000
	DefaultLimit = 100
)

// PipelineRunRepository is the storage contract. Both backends must honor
// the same filter semantics so they are swappable without changing observed
// query results.
type PipelineRunRepository interface {
	// List returns the runs matching f, ordered by start_utc descending,
	// windowed by p unless p.All is set.
	List(ctx context.Context, f Filter, p Page) ([]models.PipelineRun, error)
	// Count returns the cardinality of the matching population, independent
	// of any windowing.
	Count(ctx context.Context, f Filter) (int, error)
	// Insert durably persists a validated run.
	Insert(ctx context.Context, run *models.PipelineRun) error
	// Summaries aggregates the unfiltered population by pipeline signature.
	Summaries(ctx context.Context) ([]models.PipelineSummary, error)
	// FindByDateCode returns the first run with the given date code, or
	// ErrNotFound.
	FindByDateCode(ctx context.Context, dateCode string) (*models.PipelineRun, error)
}

// Filter holds the optional query predicates. A nil field contributes no
// predicate; an empty Filter matches the entire population. Range bounds are
// inclusive on both ends, string matches are case-sensitive equality.
type Filter struct {
	StartUTC     *time.Time // start_utc >= StartUTC
	EndUTC       *time.Time // end_utc <= EndUTC
	MinRowcount  *int64
	MaxRowcount  *int64
	PipelineName *string
	ScriptName   *string
	PipelineType *string
	Environment  *string
}

// matches is the single in-memory statement of the filter semantics. The
// relational backend must translate each predicate to an equivalent bound
// SQL clause.
func (f Filter) matches(r *models.PipelineRun) bool {
	if f.StartUTC != nil && r.StartUTC.Before(*f.StartUTC) {
		return false
	}
	if f.EndUTC != nil && r.EndUTC.After(*f.EndUTC) {
		return false
	}
	if f.MinRowcount != nil && r.Rowcount < *f.MinRowcount {
		return false
	}
	if f.MaxRowcount != nil && r.Rowcount > *f.MaxRowcount {
		return false
	}
	if !matchOptional(f.PipelineName, r.PipelineName) {
		return false
	}
	if !matchOptional(f.ScriptName, r.ScriptName) {
		return false
	}
	if !matchOptional(f.PipelineType, r.PipelineType) {
		return false
	}
	return matchOptional(f.Environment, r.Environment)
}

func matchOptional(want, have *string) bool {
	if want == nil {
		return true
	}
	return have != nil && *have == *want
}

// Page is the query window. All bypasses windowing entirely.
type Page struct {
	Limit  int
	Offset int
	All    bool
}

func (p Page) Validate() error {
	if p.All {
		return nil
	}
	if p.Limit < MinLimit || p.Limit > MaxLimit {
		return &models.ValidationError{Field: "limit", Reason: "must be between 1 and 10000"}
	}
	if p.Offset < 0 {
		return &models.ValidationError{Field: "offset", Reason: "must be non-negative"}
	}
	return nil
}
