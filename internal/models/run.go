package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayouts are the accepted input formats. Pipeline scripts emit
// local times as "2006-01-02 15:04:05" and UTC times as RFC3339; both must
// parse. Values without an explicit zone are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time that accepts both RFC3339 and the space-separated
// form on input and always emits RFC3339. It crosses both storage boundaries:
// JSON lines in the file store and TIMESTAMPTZ columns in the relational one.
type Timestamp struct {
	time.Time
}

func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, &ValidationError{Field: "timestamp", Reason: fmt.Sprintf("unparseable value %q", s)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer so the driver binds a native time value,
// never a pre-formatted string.
func (t Timestamp) Value() (driver.Value, error) {
	return t.Time, nil
}

func (t *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

// PipelineRun is one pipeline execution. Records are immutable once written;
// there is no update or delete path.
type PipelineRun struct {
	StartLocal     Timestamp `json:"start_local" db:"start_local"`
	EndLocal       Timestamp `json:"end_local" db:"end_local"`
	StartUTC       Timestamp `json:"start_utc" db:"start_utc"`
	EndUTC         Timestamp `json:"end_utc" db:"end_utc"`
	ElapsedSeconds float64   `json:"elapsed_seconds" db:"elapsed_seconds"`
	ElapsedHuman   string    `json:"elapsed_human" db:"elapsed_human"`
	OutputFile     string    `json:"output_file" db:"output_file"`
	Rowcount       int64     `json:"rowcount" db:"rowcount"`
	LogFile        string    `json:"log_file" db:"log_file"`
	PID            int       `json:"pid" db:"pid"`
	DateCode       string    `json:"date_code" db:"date_code"`
	PipelineName   *string   `json:"pipeline_name,omitempty" db:"pipeline_name"`
	ScriptName     *string   `json:"script_name,omitempty" db:"script_name"`
	PipelineType   *string   `json:"pipeline_type,omitempty" db:"pipeline_type"`
	Environment    *string   `json:"environment,omitempty" db:"environment"`
}

// ValidationError reports a record that violates model constraints. It is
// surfaced to the caller immediately and never reaches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the constraints every record must satisfy before it is
// persisted or served. End-before-start is rejected for both timestamp pairs.
func (r *PipelineRun) Validate() error {
	if r.DateCode == "" {
		return &ValidationError{Field: "date_code", Reason: "must not be empty"}
	}
	if r.StartUTC.IsZero() || r.EndUTC.IsZero() {
		return &ValidationError{Field: "start_utc/end_utc", Reason: "must be set"}
	}
	if r.StartLocal.IsZero() || r.EndLocal.IsZero() {
		return &ValidationError{Field: "start_local/end_local", Reason: "must be set"}
	}
	if r.EndUTC.Before(r.StartUTC.Time) {
		return &ValidationError{Field: "end_utc", Reason: "must not precede start_utc"}
	}
	if r.EndLocal.Before(r.StartLocal.Time) {
		return &ValidationError{Field: "end_local", Reason: "must not precede start_local"}
	}
	if r.Rowcount < 0 {
		return &ValidationError{Field: "rowcount", Reason: "must be non-negative"}
	}
	if r.ElapsedSeconds < 0 {
		return &ValidationError{Field: "elapsed_seconds", Reason: "must be non-negative"}
	}
	return nil
}

// RunFields returns the canonical wire-field names of PipelineRun, in insert
// order. The relational column mapping is validated against this set.
func RunFields() []string {
	return []string{
		"start_local",
		"end_local",
		"start_utc",
		"end_utc",
		"elapsed_seconds",
		"elapsed_human",
		"output_file",
		"rowcount",
		"log_file",
		"pid",
		"date_code",
		"pipeline_name",
		"script_name",
		"pipeline_type",
		"environment",
	}
}
