package models

// PipelineSummary is the aggregate view over runs sharing one pipeline
// signature (name, script, type, environment). Averages are nil, not zero,
// when no run contributed a positive value.
type PipelineSummary struct {
	PipelineName  *string    `json:"pipeline_name" db:"pipeline_name"`
	ScriptName    *string    `json:"script_name" db:"script_name"`
	PipelineType  *string    `json:"pipeline_type" db:"pipeline_type"`
	Environment   *string    `json:"environment" db:"environment"`
	TotalRuns     int64      `json:"total_runs" db:"total_runs"`
	LastRun       *Timestamp `json:"last_run" db:"last_run"`
	AvgDuration   *float64   `json:"avg_duration" db:"avg_duration"`
	TotalRowcount int64      `json:"total_rowcount" db:"total_rowcount"`
	AvgRowcount   *float64   `json:"avg_rowcount" db:"avg_rowcount"`
}

// PipelineRunList is the paginated query response envelope.
type PipelineRunList struct {
	Total     int           `json:"total"`
	Count     int           `json:"count"`
	Results   []PipelineRun `json:"results"`
	Pipelines []string      `json:"pipelines"`
}

type PipelineSummaryList struct {
	Pipelines []PipelineSummary `json:"pipelines"`
}
