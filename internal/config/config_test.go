package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, BackendJSONL, cfg.Backend)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "pipeline_data.jsonl", cfg.JSONL.Path)
	assert.Equal(t, "pipeline_runs", cfg.Database.Table)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2, cfg.Database.MaxIdleConns)
	assert.Equal(t, 5*time.Second, cfg.Database.AcquireTimeout)
	assert.NotEmpty(t, cfg.CORS.AllowedOrigins)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Backend:    "Postgres",
		ServerPort: "9090",
		Database: DatabaseConfig{
			Table:        "legacy_runs",
			MaxOpenConns: 50,
		},
	}
	ApplyDefaults(&cfg)

	// Backend kind is normalized to lower case.
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "legacy_runs", cfg.Database.Table)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
}
