package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment overrides, e.g.
// DRIVEBRIDGE_SERVER_ADDR overrides server.addr.
const envPrefix = "DRIVEBRIDGE"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Drive      DriveConfig      `mapstructure:"drive"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Observe    ObserveConfig    `mapstructure:"observe"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxUploadBytes bounds the accepted multipart upload size.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// AuthConfig configures the OAuth2 flow against the storage provider.
type AuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`

	// TokenFile is where credentials persist across restarts.
	TokenFile string `mapstructure:"token_file"`

	// StateSecret signs the OAuth2 state parameter.
	StateSecret string `mapstructure:"state_secret"`
}

// DriveConfig configures the storage API client.
type DriveConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UploadBaseURL  string        `mapstructure:"upload_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FolderCacheTTL time.Duration `mapstructure:"folder_cache_ttl"`

	// ResumableThresholdBytes is the upload size at which the client
	// switches to resumable sessions.
	ResumableThresholdBytes int64 `mapstructure:"resumable_threshold_bytes"`
}

// ResilienceConfig configures the guards around remote calls.
type ResilienceConfig struct {
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Bulkhead  BulkheadConfig  `mapstructure:"bulkhead"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Multiplier     float64       `mapstructure:"multiplier"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

// RateLimitConfig configures the outbound token bucket.
type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenDuration     time.Duration `mapstructure:"open_duration"`
}

// BulkheadConfig bounds concurrent uploads.
type BulkheadConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	LogLevel         string  `mapstructure:"log_level"`
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	TracingExporter  string  `mapstructure:"tracing_exporter"`
	TracingSamplePct float64 `mapstructure:"tracing_sample_pct"`
	MetricsEnabled   bool    `mapstructure:"metrics_enabled"`
	MetricsExporter  string  `mapstructure:"metrics_exporter"`
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	configFile string
	envFile    string
}

// WithConfigFile sets an explicit YAML config file path.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file, and environment variables.
func Load(opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	// .env first so AutomaticEnv sees its variables.
	envFile := o.envFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: failed to load env file %s: %w", envFile, err)
		}
	} else if o.envFile != "" {
		return nil, fmt.Errorf("config: env file not found: %s", o.envFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(64<<20))

	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "http://localhost:8080/oauth/callback")
	v.SetDefault("auth.token_file", "gdrive_token.json")
	v.SetDefault("auth.state_secret", "")

	v.SetDefault("drive.base_url", "")
	v.SetDefault("drive.upload_base_url", "")
	v.SetDefault("drive.request_timeout", 30*time.Second)
	v.SetDefault("drive.folder_cache_ttl", 5*time.Minute)
	v.SetDefault("drive.resumable_threshold_bytes", 5<<20)

	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.base_delay", time.Second)
	v.SetDefault("resilience.retry.max_delay", 60*time.Second)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.jitter_fraction", 0.25)

	v.SetDefault("resilience.rate_limit.rate", 5.0)
	v.SetDefault("resilience.rate_limit.burst", 10)

	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.open_duration", 60*time.Second)

	v.SetDefault("resilience.bulkhead.max_concurrent", 10)
	v.SetDefault("resilience.bulkhead.max_wait", time.Duration(0))

	v.SetDefault("observe.service_name", "drivebridge")
	v.SetDefault("observe.log_level", "info")
	v.SetDefault("observe.tracing_enabled", false)
	v.SetDefault("observe.tracing_exporter", "none")
	v.SetDefault("observe.tracing_sample_pct", 1.0)
	v.SetDefault("observe.metrics_enabled", true)
	v.SetDefault("observe.metrics_exporter", "prometheus")
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("config: server.max_upload_bytes must be positive")
	}
	if c.Resilience.Retry.MaxAttempts < 0 {
		return errors.New("config: resilience.retry.max_attempts must not be negative")
	}
	if c.Resilience.Retry.JitterFraction < 0 || c.Resilience.Retry.JitterFraction > 1 {
		return errors.New("config: resilience.retry.jitter_fraction must be within [0, 1]")
	}
	if c.Resilience.RateLimit.Rate < 0 {
		return errors.New("config: resilience.rate_limit.rate must not be negative")
	}
	if c.Resilience.Breaker.FailureThreshold < 0 {
		return errors.New("config: resilience.breaker.failure_threshold must not be negative")
	}
	return nil
}
