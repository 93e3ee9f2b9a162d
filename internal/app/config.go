package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/eansheet/eansheet/internal/generator"
)

// ClientConfig holds the settings every entry point needs to reach the barcode backend.
type ClientConfig struct {
	BackendURL      string        `envconfig:"BACKEND_URL" required:"true"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"45s"`
	DefaultPreset   string        `envconfig:"DEFAULT_PRESET" default:"4"`
	DefaultTheme    string        `envconfig:"DEFAULT_THEME" default:"dark"`
	ToastTTL        time.Duration `envconfig:"TOAST_TTL" default:"3s"`
	MaxImportBytes  int64         `envconfig:"MAX_IMPORT_BYTES" default:"1048576"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
}

// Config holds runtime configuration for the web server and worker.
type Config struct {
	ClientConfig

	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"75s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"60s"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	WarmupSchedule    string `envconfig:"WARMUP_SCHEDULE" default:"*/10 * * * *"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadClientConfig reads the backend settings from environment variables.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.ClientConfig.validate(); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.GenerateTimeout > 0 && cfg.AppRequestTimeout <= cfg.GenerateTimeout {
		return nil, fmt.Errorf("APP_REQUEST_TIMEOUT (%s) must exceed GENERATE_TIMEOUT (%s)", cfg.AppRequestTimeout, cfg.GenerateTimeout)
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.BackendURL == "" {
		return errors.New("backend url must be provided")
	}
	if c.GenerateTimeout < 0 {
		return errors.New("generate timeout must not be negative")
	}
	if _, err := generator.ParsePreset(c.DefaultPreset); err != nil {
		return err
	}
	if _, err := generator.ParseTheme(c.DefaultTheme); err != nil {
		return err
	}
	return nil
}

// Generator returns the controller configuration.
func (c *ClientConfig) Generator() generator.Config {
	return generator.Config{
		Timeout:       c.GenerateTimeout,
		ToastTTL:      c.ToastTTL,
		DefaultPreset: generator.Preset(c.DefaultPreset),
		DefaultTheme:  generator.Theme(c.DefaultTheme),
	}
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
