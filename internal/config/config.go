package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded once at startup and
// reloadable for the policy section.
type Config struct {
	// Top-level application info
	Version  string `mapstructure:"version"`
	ServerID string `mapstructure:"server_id"`

	// HTTP server configuration
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		Mode            string        `mapstructure:"mode"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	// Database configuration
	Database struct {
		Type     string `mapstructure:"type"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"` // Sensitive
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"ssl_mode"`
		// URL overrides the discrete postgres fields with a full DSN.
		URL    string `mapstructure:"url"` // Sensitive
		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	} `mapstructure:"database"`

	// Auth configures how bearer tokens are turned into principals. When
	// Secret is empty the token signature is not re-verified here; the
	// upstream identity provider is trusted to have done so.
	Auth struct {
		Secret   string `mapstructure:"secret"` // Sensitive
		Issuer   string `mapstructure:"issuer"`
		Audience string `mapstructure:"audience"`
	} `mapstructure:"auth"`

	// Docker client configuration for the scan workload backend
	Docker struct {
		Host           string        `mapstructure:"host"`
		APIVersion     string        `mapstructure:"api_version"`
		TLSVerify      bool          `mapstructure:"tls_verify"`
		TLSCertPath    string        `mapstructure:"tls_cert_path"`
		TLSKeyPath     string        `mapstructure:"tls_key_path"`
		TLSCAPath      string        `mapstructure:"tls_ca_path"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"docker"`

	// Scanner configures scan workloads
	Scanner struct {
		Image                   string        `mapstructure:"image"`
		ScannerVersion          string        `mapstructure:"scanner_version"`
		TimeoutSeconds          int           `mapstructure:"timeout_seconds"`
		Retries                 int           `mapstructure:"retries"`
		Platform                string        `mapstructure:"platform"`
		JobNamespace            string        `mapstructure:"job_namespace"`
		JobServiceAccount       string        `mapstructure:"job_service_account"`
		CPURequest              string        `mapstructure:"cpu_request"`
		CPULimit                string        `mapstructure:"cpu_limit"`
		MemoryRequest           string        `mapstructure:"memory_request"`
		MemoryLimit             string        `mapstructure:"memory_limit"`
		EnableDynamicTesting    bool          `mapstructure:"enable_dynamic_testing"`
		AnalysisAPIURL          string        `mapstructure:"analysis_api_url"`
		TTLSecondsAfterFinished int           `mapstructure:"ttl_seconds_after_finished"`
		ReconcileInterval       time.Duration `mapstructure:"reconcile_interval"`
	} `mapstructure:"scanner"`

	// Enforcement configures the admission boundary
	Enforcement struct {
		Enabled                 bool    `mapstructure:"enabled"`
		Mode                    string  `mapstructure:"mode"` // audit | enforce
		DefaultTimeoutMs        int     `mapstructure:"default_timeout_ms"`
		MaxRequestPayloadBytes  int64   `mapstructure:"max_request_payload_bytes"`
		MaxResponsePayloadBytes int64   `mapstructure:"max_response_payload_bytes"`
		RateLimitPerUser        float64 `mapstructure:"rate_limit_per_user"`
		RateLimitPerTeam        float64 `mapstructure:"rate_limit_per_team"`
	} `mapstructure:"enforcement"`

	// Policy configures the decision engine; this section is reloadable.
	Policy struct {
		EnforceRegistryOnly     bool                `mapstructure:"enforce_registry_only"`
		RiskThreshold           float64             `mapstructure:"risk_threshold"`
		ScanPassThreshold       float64             `mapstructure:"scan_pass_threshold"`
		RequireAdminForHighRisk bool                `mapstructure:"require_admin_for_high_risk"`
		GlobalToolDenylist      []string            `mapstructure:"global_tool_denylist"`
		DeniedToolCategories    []string            `mapstructure:"denied_tool_categories"`
		TeamAllowlists          map[string][]string `mapstructure:"team_allowlists"`
		TeamDenylists           map[string][]string `mapstructure:"team_denylists"`
		BypassAllowedPrincipals []string            `mapstructure:"bypass_allowed_principals"`
	} `mapstructure:"policy"`

	// Audit configures the event pipeline
	Audit struct {
		QueueSize    int `mapstructure:"queue_size"`
		Workers      int `mapstructure:"workers"`
		StreamBuffer int `mapstructure:"stream_buffer"`
	} `mapstructure:"audit"`

	// Logging configuration
	Logging struct {
		Level       string `mapstructure:"level"`
		Format      string `mapstructure:"format"`
		File        string `mapstructure:"file"`
		MaskSecrets bool   `mapstructure:"mask_secrets"`
	} `mapstructure:"logging"`

	// Metrics configuration
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// configManager manages application configuration, including reloading and
// validation
type configManager struct {
	config *Config
	mu     sync.RWMutex
	log    *logrus.Logger
}

var (
	manager *configManager
	once    sync.Once
)

// GetConfigManager returns the singleton config manager instance
func GetConfigManager() *configManager {
	once.Do(func() {
		manager = &configManager{
			log: logrus.New(),
		}
	})
	return manager
}

// LoadConfig loads the configuration from environment variables and/or config
// file
func LoadConfig() (*Config, error) {
	return GetConfigManager().Load()
}

// Load loads the configuration from environment variables and/or config file
func (cm *configManager) Load() (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var config Config

	setDefaults()

	if err := loadConfigFile(); err != nil {
		cm.log.WithError(err).Warning("Failed to load config file, using environment variables only")
	}

	loadEnvVars()

	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cm.config = &config

	return &config, nil
}

// GetConfig returns the current configuration
func (cm *configManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Reload re-reads the configuration sources. Callers holding component-level
// snapshots (the policy engine) rebuild them from the returned config.
func (cm *configManager) Reload(ctx context.Context) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return cm.Load()
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("version", "dev")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "90s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.sqlite.path", "mcpwarden.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.conn_max_idle_time", "5m")

	// Auth defaults
	viper.SetDefault("auth.issuer", "")
	viper.SetDefault("auth.audience", "")

	// Docker defaults
	viper.SetDefault("docker.host", "unix:///var/run/docker.sock")
	viper.SetDefault("docker.tls_verify", false)
	viper.SetDefault("docker.request_timeout", "30s")

	// Scanner defaults
	viper.SetDefault("scanner.image", "ghcr.io/vantagesec/mcp-scanner:latest")
	viper.SetDefault("scanner.timeout_seconds", 300)
	viper.SetDefault("scanner.retries", 1)
	viper.SetDefault("scanner.platform", "")
	viper.SetDefault("scanner.job_namespace", "mcpwarden-scans")
	viper.SetDefault("scanner.job_service_account", "mcpwarden-scanner")
	viper.SetDefault("scanner.cpu_request", "250m")
	viper.SetDefault("scanner.cpu_limit", "1")
	viper.SetDefault("scanner.memory_request", "256Mi")
	viper.SetDefault("scanner.memory_limit", "1Gi")
	viper.SetDefault("scanner.enable_dynamic_testing", false)
	viper.SetDefault("scanner.ttl_seconds_after_finished", 600)
	viper.SetDefault("scanner.reconcile_interval", "15s")

	// Enforcement defaults
	viper.SetDefault("enforcement.enabled", true)
	viper.SetDefault("enforcement.mode", "enforce")
	viper.SetDefault("enforcement.default_timeout_ms", 30000)
	viper.SetDefault("enforcement.max_request_payload_bytes", 1048576)
	viper.SetDefault("enforcement.max_response_payload_bytes", 10485760)
	viper.SetDefault("enforcement.rate_limit_per_user", 0)
	viper.SetDefault("enforcement.rate_limit_per_team", 0)

	// Policy defaults
	viper.SetDefault("policy.enforce_registry_only", true)
	viper.SetDefault("policy.risk_threshold", 0.7)
	viper.SetDefault("policy.scan_pass_threshold", 0.5)
	viper.SetDefault("policy.require_admin_for_high_risk", true)
	viper.SetDefault("policy.global_tool_denylist", []string{})
	viper.SetDefault("policy.denied_tool_categories", []string{})
	viper.SetDefault("policy.bypass_allowed_principals", []string{})

	// Audit defaults
	viper.SetDefault("audit.queue_size", 4096)
	viper.SetDefault("audit.workers", 2)
	viper.SetDefault("audit.stream_buffer", 64)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.mask_secrets", true)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
}

// loadConfigFile loads configuration from a file
func loadConfigFile() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/mcpwarden")

	if err := viper.ReadInConfig(); err != nil {
		// It's ok if config file is not found
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return nil
}

// loadEnvVars loads configuration from environment variables
func loadEnvVars() {
	viper.SetEnvPrefix("MCPWARDEN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	result := ValidationResult{
		Errors: []ValidationError{},
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("invalid server port: %d", config.Server.Port),
		})
	}

	switch config.Server.Mode {
	case "debug", "release", "test":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("unsupported server mode: %s", config.Server.Mode),
		})
	}

	if config.Database.Type != "postgres" && config.Database.Type != "sqlite" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("unsupported database type: %s", config.Database.Type),
		})
	}

	if config.Database.Type == "sqlite" {
		if config.Database.SQLite.Path == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.sqlite.path",
				Message: "sqlite database path is empty",
			})
		} else if dir := filepath.Dir(config.Database.SQLite.Path); dir != "." {
			if err := MakeDirectory(dir); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "database.sqlite.path",
					Message: fmt.Sprintf("failed to create directory for sqlite database: %v", err),
				})
			}
		}
	}

	if config.Database.Type == "postgres" && config.Database.URL == "" {
		if config.Database.Host == "" || config.Database.Name == "" || config.Database.User == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database",
				Message: "postgres requires either database.url or host, name, and user",
			})
		}
	}

	switch strings.ToLower(config.Enforcement.Mode) {
	case "audit", "enforce":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "enforcement.mode",
			Message: fmt.Sprintf("enforcement mode must be audit or enforce, got %q", config.Enforcement.Mode),
		})
	}

	if config.Scanner.Image == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scanner.image",
			Message: "scanner image is required",
		})
	} else if _, err := reference.ParseAnyReference(config.Scanner.Image); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scanner.image",
			Message: fmt.Sprintf("scanner image is not a valid reference: %v", err),
		})
	}

	if config.Scanner.TimeoutSeconds <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scanner.timeout_seconds",
			Message: "scan timeout must be positive",
		})
	}

	if config.Scanner.ReconcileInterval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scanner.reconcile_interval",
			Message: "reconcile interval must be positive",
		})
	}

	if config.Policy.RiskThreshold < 0 || config.Policy.RiskThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "policy.risk_threshold",
			Message: fmt.Sprintf("risk threshold must be within [0,1], got %v", config.Policy.RiskThreshold),
		})
	}

	if config.Policy.ScanPassThreshold < 0 || config.Policy.ScanPassThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "policy.scan_pass_threshold",
			Message: fmt.Sprintf("scan pass threshold must be within [0,1], got %v", config.Policy.ScanPassThreshold),
		})
	}

	if config.Audit.QueueSize <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "audit.queue_size",
			Message: "audit queue size must be positive",
		})
	}

	if config.Audit.Workers <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "audit.workers",
			Message: "audit workers must be positive",
		})
	}

	if len(result.Errors) > 0 {
		return result
	}

	return nil
}

// ValidationResult collects configuration problems so callers see them all at
// once
type ValidationResult struct {
	Errors []ValidationError
}

// ValidationError describes a single invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (r ValidationResult) Error() string {
	if len(r.Errors) == 0 {
		return "configuration is valid"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d configuration error(s):", len(r.Errors)))
	for _, e := range r.Errors {
		sb.WriteString(fmt.Sprintf(" [%s: %s]", e.Field, e.Message))
	}
	return sb.String()
}

// SafeString masks a sensitive value for logging
func SafeString(val string) string {
	if val == "" {
		return ""
	}
	if len(val) <= 4 {
		return "****"
	}
	return val[:2] + "****" + val[len(val)-2:]
}

// MakeDirectory creates a directory if it doesn't exist
func MakeDirectory(path string) error {
	if fileExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
