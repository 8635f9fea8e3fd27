package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend kinds understood by the repository factory.
const (
	BackendJSONL    = "jsonl"
	BackendPostgres = "postgres"
)

type JSONLConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	URL            string            `mapstructure:"url"`
	Table          string            `mapstructure:"table"`
	ColumnMap      map[string]string `mapstructure:"column_map"`
	MaxOpenConns   int               `mapstructure:"max_open_conns"`
	MaxIdleConns   int               `mapstructure:"max_idle_conns"`
	AcquireTimeout time.Duration     `mapstructure:"acquire_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	Backend    string         `mapstructure:"backend"`
	ServerPort string         `mapstructure:"server_port"`
	JSONL      JSONLConfig    `mapstructure:"jsonl"`
	Database   DatabaseConfig `mapstructure:"database"`
	CORS       CORSConfig     `mapstructure:"cors"`
}

// Load reads the configuration from a YAML file and returns a Config
// instance. The core never reads ambient state; everything the backends
// need arrives through this struct.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	ApplyDefaults(&config)

	if config.Backend != BackendJSONL && config.Backend != BackendPostgres {
		log.Fatalf("Unsupported backend %q (want %q or %q)", config.Backend, BackendJSONL, BackendPostgres)
	}
	if config.Backend == BackendPostgres && config.Database.URL == "" {
		log.Fatal("database.url must be set for the postgres backend")
	}

	return &config
}

// ApplyDefaults fills the fallback values for anything the file left unset.
func ApplyDefaults(config *Config) {
	config.Backend = strings.ToLower(config.Backend)

	if config.Backend == "" {
		config.Backend = BackendJSONL
	}
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JSONL.Path == "" {
		config.JSONL.Path = "pipeline_data.jsonl"
	}
	if config.Database.Table == "" {
		config.Database.Table = "pipeline_runs"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 10
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 2
	}
	if config.Database.AcquireTimeout == 0 {
		config.Database.AcquireTimeout = 5 * time.Second
	}
	if len(config.CORS.AllowedOrigins) == 0 {
		config.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
}
