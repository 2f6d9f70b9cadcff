package app

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the costing engine.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// Empty DSN selects the embedded in-memory store.
	PGDSN string `envconfig:"PG_DSN" default:""`

	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	// CostingPolicy is "strict" (default) or "degrade"; see costing.Policy.
	CostingPolicy string `envconfig:"COSTING_POLICY" default:"strict"`

	// ABC cut points as cumulative shares of the ranking metric.
	ABCClassACutoff float64 `envconfig:"ABC_CLASS_A_CUTOFF" default:"0.80"`
	ABCClassBCutoff float64 `envconfig:"ABC_CLASS_B_CUTOFF" default:"0.95"`

	// Aging bucket upper bounds in days; the last bucket is open-ended.
	AgingBoundaryDays []int `envconfig:"AGING_BOUNDARY_DAYS" default:"30,90,180"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// UseMemoryStore reports whether the embedded store should be used.
func (c *Config) UseMemoryStore() bool {
	return c == nil || c.PGDSN == ""
}
