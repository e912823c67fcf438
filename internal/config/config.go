// Package config centralizes runtime settings for the export client.
package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig holds the embedded defaults. A config file and
// RANKEXPORT_* environment variables override individual values.
const DefaultConfig = `
service_url: ""
auth_token: ""
output_path: "top-customers.csv"
max_retries: 3
backoff_base: 2s
prepare_timeout: 300s
batch_timeout: 60s
log_level: "info"
telemetry:
  endpoint: ""
  probability: 0.05
  insecure: true
`

// TelemetryConfig defines the tracing exporter settings. Tracing is
// disabled when the endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Probability float64 `mapstructure:"probability"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Config represents the top-level configuration.
type Config struct {
	// ServiceURL is the base URL of the report service.
	ServiceURL string `mapstructure:"service_url"`

	// AuthToken is the per-session credential sent on every request.
	AuthToken string `mapstructure:"auth_token"`

	// OutputPath is where the downloaded file is written.
	OutputPath string `mapstructure:"output_path"`

	// MaxRetries bounds the retries per batch.
	MaxRetries int `mapstructure:"max_retries"`

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// PrepareTimeout bounds the preparation request.
	PrepareTimeout time.Duration `mapstructure:"prepare_timeout"`

	// BatchTimeout bounds each batch request.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	LogLevel string `mapstructure:"log_level"`

	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// Load reads configuration from the embedded defaults, then an optional
// YAML file, then RANKEXPORT_* environment variables, in increasing
// precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBufferString(DefaultConfig)); err != nil {
		return Config{}, fmt.Errorf("read embedded config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RANKEXPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("service_url is required")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth_token is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive")
	}
	if c.PrepareTimeout <= 0 || c.BatchTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
