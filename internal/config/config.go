// Package config loads the shipyard server configuration from the environment
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names
const (
	EnvHTTPAddr        = "SHIPYARD_HTTP_ADDR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvJobTimeout      = "SHIPYARD_JOB_TIMEOUT"
	EnvShutdownTimeout = "SHIPYARD_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "SHIPYARD_METRICS_ENABLED"
	EnvRunnerStepDelay = "SHIPYARD_RUNNER_STEP_DELAY"
	EnvAuthEnabled     = "SHIPYARD_AUTH_ENABLED"

	EnvDBHost     = "DB_HOST"
	EnvDBPort     = "DB_PORT"
	EnvDBUser     = "DB_USER"
	EnvDBPassword = "DB_PASSWORD"
	EnvDBName     = "DB_NAME"
	EnvDBSSLMode  = "DB_SSL_MODE"
)

// Defaults
const (
	DefaultHTTPAddr        = ":8080"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRunnerStepDelay = time.Second

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "postgres"
	DefaultDBPassword = "postgres"
	DefaultDBName     = "postgres"
	DefaultDBSSLMode  = "disable"
)

var sslModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// DB holds the postgres connection settings
type DB struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// DSN returns the key/value connection string used by the GORM postgres driver
func (d DB) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// URL returns the connection URL used by golang-migrate
func (d DB) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Config holds all configuration for the shipyard server
type Config struct {
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
	DB       DB     `json:"db"`

	// JobTimeout is the default execution deadline; zero disables it.
	JobTimeout      time.Duration `json:"job_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	RunnerStepDelay time.Duration `json:"runner_step_delay"`

	MetricsEnabled bool `json:"metrics_enabled"`
	AuthEnabled    bool `json:"auth_enabled"`
}

// Load reads configuration from environment variables with defaults and
// validates it. Every problem found is reported in the returned ValidationErrors.
func Load() (Config, error) {
	var errs ValidationErrors

	cfg := Config{
		HTTPAddr: GetEnv(EnvHTTPAddr, DefaultHTTPAddr),
		LogLevel: strings.ToLower(GetEnv(EnvLogLevel, DefaultLogLevel)),
		DB: DB{
			Host:     GetEnv(EnvDBHost, DefaultDBHost),
			User:     GetEnv(EnvDBUser, DefaultDBUser),
			Password: GetEnv(EnvDBPassword, DefaultDBPassword),
			Name:     GetEnv(EnvDBName, DefaultDBName),
			SSLMode:  GetEnv(EnvDBSSLMode, DefaultDBSSLMode),
		},
	}

	cfg.DB.Port = parseInt(EnvDBPort, DefaultDBPort, &errs)
	cfg.JobTimeout = parseDuration(EnvJobTimeout, 0, &errs)
	cfg.ShutdownTimeout = parseDuration(EnvShutdownTimeout, DefaultShutdownTimeout, &errs)
	cfg.RunnerStepDelay = parseDuration(EnvRunnerStepDelay, DefaultRunnerStepDelay, &errs)
	cfg.MetricsEnabled = parseBool(EnvMetricsEnabled, true, &errs)
	cfg.AuthEnabled = parseBool(EnvAuthEnabled, true, &errs)

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.HTTPAddr == "" {
		errs = append(errs, ValidationError{Field: EnvHTTPAddr, Message: "required"})
	}
	if c.DB.Host == "" {
		errs = append(errs, ValidationError{Field: EnvDBHost, Message: "required"})
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, ValidationError{Field: EnvDBPort, Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.DB.Port)})
	}
	if !sslModes[c.DB.SSLMode] {
		errs = append(errs, ValidationError{Field: EnvDBSSLMode, Message: fmt.Sprintf("unsupported ssl mode %q", c.DB.SSLMode)})
	}
	if c.JobTimeout < 0 {
		errs = append(errs, ValidationError{Field: EnvJobTimeout, Message: "must not be negative"})
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, ValidationError{Field: EnvShutdownTimeout, Message: "must be positive"})
	}
	if c.RunnerStepDelay < 0 {
		errs = append(errs, ValidationError{Field: EnvRunnerStepDelay, Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func parseInt(key string, fallback int, errs *ValidationErrors) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid integer %q", raw)})
		return fallback
	}
	return n
}

func parseDuration(key string, fallback time.Duration, errs *ValidationErrors) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid duration: %v", err)})
		return fallback
	}
	return d
}

func parseBool(key string, fallback bool, errs *ValidationErrors) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid boolean %q", raw)})
		return fallback
	}
	return b
}
