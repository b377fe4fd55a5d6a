// Package config provides unified configuration for the vizlaunch server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (VIZLAUNCH_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"strconv"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// Config holds all configuration for the vizlaunch server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Languages     []api.Language      `yaml:"languages"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 10m
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 2MB
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// SandboxConfig selects and tunes the container runtime.
type SandboxConfig struct {
	Runtime      string        `yaml:"runtime"`       // "docker-cli", "docker-api" or "remote"
	DockerBinary string        `yaml:"docker_binary"` // default: "docker"
	Timeout      time.Duration `yaml:"timeout"`       // default: 60s
	MaxTimeout   time.Duration `yaml:"max_timeout"`   // cap for timeout_seconds, default: 5m
	MaxCodeSize  int           `yaml:"max_code_size"` // default: 1MB

	MaxConcurrent int           `yaml:"max_concurrent"` // default: 8, 0 disables the limit
	QueueTimeout  time.Duration `yaml:"queue_timeout"`  // default: 0, reject at once

	Memory    string `yaml:"memory"`     // default: "512m"
	CPUs      string `yaml:"cpus"`       // default: "1"
	PidsLimit int64  `yaml:"pids_limit"` // default: 128
	Network   string `yaml:"network"`    // default: "none"

	MaxOutputBytes int    `yaml:"max_output_bytes"` // default: 10MB
	WorkDir        string `yaml:"work_dir"`

	Remote RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds settings for the remote runtime. Either URL names a
// fixed sandbox server, or Template selects a SandboxTemplate to claim
// sandboxes from.
type RemoteConfig struct {
	URL          string        `yaml:"url"`
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // default: 2m
}

// StorageConfig holds execution history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`

	// RateLimits maps a service tier to requests per minute.
	RateLimits map[string]int `yaml:"rate_limits"`
	// DefaultRateLimit applies to tiers missing from RateLimits. 0 is unlimited.
	DefaultRateLimit int `yaml:"default_rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
	// Languages limits the key to these languages. Empty allows all.
	Languages []string `yaml:"languages" json:"languages"`
}

// JWTConfig holds JWT validation settings for type=jwt.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`
	TenantClaim string `yaml:"tenant_claim"`
	TierClaim   string `yaml:"tier_claim"`
	// LanguagesClaim names the claim listing allowed languages.
	LanguagesClaim string `yaml:"languages_claim"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// LoggingConfig controls the default slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR or TRACE
	Format string `yaml:"format"` // "text" or "json"
	// Debug is a comma-separated list of debug categories.
	Debug string `yaml:"debug"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     2 << 20,
		},
		Sandbox: SandboxConfig{
			Runtime:        "docker-cli",
			DockerBinary:   "docker",
			Timeout:        60 * time.Second,
			MaxTimeout:     5 * time.Minute,
			MaxCodeSize:    1 << 20,
			MaxConcurrent:  8,
			Memory:         "512m",
			CPUs:           "1",
			PidsLimit:      128,
			Network:        "none",
			MaxOutputBytes: 10 << 20,
			Remote: RemoteConfig{
				Namespace:    "default",
				ClaimTimeout: 2 * time.Minute,
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// LanguageRegistry merges the configured languages over the built-in
// python and R definitions.
func (c *Config) LanguageRegistry() (*api.LanguageRegistry, error) {
	return api.NewLanguageRegistry(api.MergeLanguages(api.DefaultLanguages(), c.Languages))
}

// ValidationConfig returns the request limits derived from the sandbox section.
func (c *Config) ValidationConfig() api.ValidationConfig {
	return api.ValidationConfig{
		MaxCodeSize:       c.Sandbox.MaxCodeSize,
		MaxTimeoutSeconds: int(c.Sandbox.MaxTimeout / time.Second),
	}
}
