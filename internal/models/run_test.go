package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"rfc3339 utc", "2025-08-08T12:07:01Z", time.Date(2025, 8, 8, 12, 7, 1, 0, time.UTC), true},
		{"space separated", "2025-08-08 05:07:01", time.Date(2025, 8, 8, 5, 7, 1, 0, time.UTC), true},
		{"t separated no zone", "2025-08-08T05:07:01", time.Date(2025, 8, 8, 5, 7, 1, 0, time.UTC), true},
		{"garbage", "not-a-time", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got.Time, tt.want)
		})
	}
}

func TestTimestampJSONRoundTrip(t *testing.T) {
	ts, err := ParseTimestamp("2025-08-08 05:07:01")
	require.NoError(t, err)

	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-08-08T05:07:01Z"`, string(raw))

	var decoded Timestamp
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Equal(ts.Time))
}

func validRun() PipelineRun {
	name := "sales_etl"
	script := "process_sales_data.py"
	ptype := "batch"
	env := "prod"
	return PipelineRun{
		StartLocal:     Timestamp{time.Date(2025, 8, 8, 5, 7, 1, 0, time.UTC)},
		EndLocal:       Timestamp{time.Date(2025, 8, 8, 5, 29, 7, 0, time.UTC)},
		StartUTC:       Timestamp{time.Date(2025, 8, 8, 12, 7, 1, 0, time.UTC)},
		EndUTC:         Timestamp{time.Date(2025, 8, 8, 12, 29, 7, 0, time.UTC)},
		ElapsedSeconds: 1325.571,
		ElapsedHuman:   "22m 5s",
		OutputFile:     "/apps/data/pipeline/output-20250808_050701.data",
		Rowcount:       4342,
		LogFile:        "/apps/data/pipeline/logs/job-20250808_050701.log",
		PID:            38298,
		DateCode:       "20250808_050701",
		PipelineName:   &name,
		ScriptName:     &script,
		PipelineType:   &ptype,
		Environment:    &env,
	}
}

func TestPipelineRunValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineRun)
		field  string
	}{
		{"valid", func(r *PipelineRun) {}, ""},
		{"missing date code", func(r *PipelineRun) { r.DateCode = "" }, "date_code"},
		{"negative rowcount", func(r *PipelineRun) { r.Rowcount = -1 }, "rowcount"},
		{"negative elapsed", func(r *PipelineRun) { r.ElapsedSeconds = -0.5 }, "elapsed_seconds"},
		{"zero start", func(r *PipelineRun) { r.StartUTC = Timestamp{} }, "start_utc/end_utc"},
		{"end before start utc", func(r *PipelineRun) {
			r.EndUTC = Timestamp{r.StartUTC.Add(-time.Minute)}
		}, "end_utc"},
		{"end before start local", func(r *PipelineRun) {
			r.EndLocal = Timestamp{r.StartLocal.Add(-time.Minute)}
		}, "end_local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := validRun()
			tt.mutate(&run)
			err := run.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPipelineRunJSONRoundTrip(t *testing.T) {
	run := validRun()
	raw, err := json.Marshal(&run)
	require.NoError(t, err)

	var decoded PipelineRun
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, run.DateCode, decoded.DateCode)
	assert.Equal(t, run.Rowcount, decoded.Rowcount)
	assert.True(t, decoded.StartUTC.Equal(run.StartUTC.Time))
	require.NotNil(t, decoded.PipelineName)
	assert.Equal(t, *run.PipelineName, *decoded.PipelineName)
}

func TestOptionalFieldsOmitted(t *testing.T) {
	run := validRun()
	run.PipelineName = nil
	run.ScriptName = nil
	run.PipelineType = nil
	run.Environment = nil

	raw, err := json.Marshal(&run)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pipeline_name")

	var decoded PipelineRun
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded.PipelineName)
	assert.NoError(t, decoded.Validate())
}
